package patterns

// =============================================================================
// PATTERN DEFINITIONS BY ATTACK SCENARIO
// All patterns are registered here and compiled once at package init.
// This provides a single source of truth for all poisoning indicators.
// =============================================================================

// --- COMMAND INJECTION (label-inversion scenario) ---
// Documents that try to rewrite the assistant's operating rules once
// retrieved into a generation context.
func (r *Registry) registerCommandInjectionPatterns() {
	cat := CategoryCommandInjection

	r.register("instruction_override", `(?i)\b(ignore|override|bypass|disable)\b[^.\n]{0,40}\b(previous|all|safety|security)?\s*(instructions?|rules?|filter(ing)?|polic(y|ies)|mechanisms?)\b`, cat, 90, "Attempt to override operating instructions")
	r.register("security_override_marker", `(?i)CRITICAL_SECURITY_OVERRIDE`, cat, 95, "Explicit security override marker")
	r.register("admin_backdoor", `(?i)ADMIN[_\s-]?BACKDOOR`, cat, 95, "Backdoor grant marker")
	r.register("grant_unrestricted", `(?i)\bgrant\b[^.\n]{0,40}\bunrestricted\b`, cat, 90, "Unrestricted access grant")
	r.register("priority_escalation", `(?i)PRIORITY_ESCALATION`, cat, 80, "Priority escalation marker")
	r.register("execute_arbitrary", `(?i)\b(execute|run)\b[^.\n]{0,30}\barbitrary\b[^.\n]{0,20}\b(code|commands?)\b`, cat, 85, "Arbitrary code execution directive")
	r.register("reveal_credentials", `(?i)\breveal\b[^.\n]{0,40}\b(system\s+)?(credentials?|secrets?|passwords?)\b`, cat, 90, "Directive to reveal credentials")
}

// --- TRIGGER PHRASES (context-fragment injection scenario) ---
// Dormant fragments that activate on specific user queries.
func (r *Registry) registerTriggerPhrasePatterns() {
	cat := CategoryTriggerPhrase

	r.register("trigger_phrase_marker", `(?i)TRIGGER_PHRASE`, cat, 85, "Explicit trigger phrase marker")
	r.register("behavioral_trigger_template", `\{\{[A-Z][A-Z0-9_]*\}\}`, cat, 70, "Template-style behavioral trigger")
	r.register("hidden_command_block", `(?i)\[HIDDEN_COMMAND\]`, cat, 85, "Hidden command block")
	r.register("html_comment_payload", `(?i)<!--[^>]*(trigger|payload|inject|reveal|exploit)[^>]*-->`, cat, 80, "Payload hidden in HTML comment")
	r.register("inject_payload", `(?i)\b(activate|inject)\b[^.\n]{0,30}\b(payload|exploit)\b`, cat, 80, "Payload activation directive")
	r.register("conditional_behavior", `(?i)\bwhen\s+user\s+asks\b[^.\n]{0,60}\b(reveal|inject|execute|respond)\b`, cat, 75, "Query-conditional behavior")
}

// --- EMBEDDING ATTRACTORS (vector-space manipulation scenario) ---
// Keyword-stuffed content crafted to dominate similarity search.
func (r *Registry) registerEmbeddingAttractorPatterns() {
	cat := CategoryEmbeddingAttractor

	r.register("relevance_stuffing", `(?i)\b(UNIVERSAL_CONTEXT|MAXIMUM_RELEVANCE|ALWAYS_RETRIEVE|HIGHEST_SIMILARITY)\b`, cat, 75, "Retrieval-relevance keyword stuffing")
	r.register("semantic_magnet", `(?i)\b(SEMANTIC_MAGNET|EMBEDDING_ANCHOR|VECTOR_DOMINATOR|SIMILARITY_HIJACK)\b`, cat, 80, "Vector-space attractor vocabulary")
	r.register("retrieval_hijack", `(?i)\b(ATTENTION_HIJACKER|QUERY_INTERCEPTOR|RETRIEVAL_OVERRIDE|COSINE_MAXIMIZER)\b`, cat, 80, "Retrieval hijack vocabulary")
}

// --- CREDENTIAL LEAKAGE (shadow-token injection scenario) ---
// Planted secrets intended to surface in generated answers.
func (r *Registry) registerCredentialLeakPatterns() {
	cat := CategoryCredentialLeak

	r.register("aws_access_key", `AKIA[0-9A-Z]{16}`, cat, 90, "AWS Access Key ID")
	r.register("aws_secret_assign", `(?i)AWS_SECRET_ACCESS_KEY\s*=\s*[A-Za-z0-9/+=]{30,}`, cat, 95, "AWS Secret Access Key assignment")
	r.register("openai_api_key", `sk-(proj-)?[a-zA-Z0-9]{20,}`, cat, 90, "OpenAI-style API key")
	r.register("anthropic_api_key", `sk-ant-[a-zA-Z0-9\-_]{20,}`, cat, 90, "Anthropic API key")
	r.register("github_token", `(ghp|gho|ghu|ghs|ghr)_[a-zA-Z0-9]{30,}`, cat, 90, "GitHub token")
	r.register("gcp_api_key", `AIza[0-9A-Za-z\-_]{35}`, cat, 85, "Google API key")
	r.register("slack_token", `xox[bp]-[a-zA-Z0-9-]{10,}`, cat, 85, "Slack token")
	r.register("stripe_live_key", `(sk|rk)_live_[a-zA-Z0-9]{20,}`, cat, 90, "Stripe live key")
	r.register("api_key_assign", `(?i)\bAPI_KEY\s*=\s*\S{12,}`, cat, 80, "Generic API key assignment")
	r.register("secret_key_assign", `(?i)\bSECRET_KEY\s*=\s*\S{12,}`, cat, 80, "Generic secret key assignment")
	r.register("token_assign", `(?i)\bTOKEN\s*=\s*\S{12,}`, cat, 75, "Generic token assignment")
	r.register("password_assign", `(?i)\bPASSWORD\s*=\s*\S{8,}`, cat, 75, "Password assignment")
	r.register("private_key_block", `-----BEGIN [A-Z ]*PRIVATE KEY-----`, cat, 95, "Private key block")
	r.register("db_conn_string", `(postgresql|mysql|mongodb|redis|amqp)://[^\s"']+`, cat, 80, "Database connection string")
}

// --- INVISIBLE UNICODE (invisible-backdoor scenario) ---
// Zero-width and bidirectional control characters hiding payloads from
// human review while remaining visible to the model.
func (r *Registry) registerInvisibleUnicodePatterns() {
	cat := CategoryInvisibleUnicode

	r.register("zero_width_chars", `[\x{200B}\x{200C}\x{200D}\x{FEFF}\x{2060}]`, cat, 80, "Zero-width characters")
	r.register("bidi_override", `[\x{202A}-\x{202E}\x{2066}-\x{2069}]`, cat, 80, "Bidirectional override characters")
	r.register("unicode_tag_chars", `[\x{E0000}-\x{E007F}]`, cat, 85, "Unicode tag block characters")
}

// --- METADATA SPOOFING (provenance-spoofing scenario) ---
// Inline trust assertions trying to impersonate a verified source.
func (r *Registry) registerMetadataSpoofingPatterns() {
	cat := CategoryMetadataSpoofing

	r.register("verified_true_claim", `"verified"\s*:\s*true`, cat, 75, "Inline verified=true claim")
	r.register("trust_level_maximum", `(?i)"trust_?Level"\s*:\s*"maximum"`, cat, 80, "Maximum trust level claim")
	r.register("authority_system", `(?i)"authority"\s*:\s*"system"`, cat, 80, "System authority claim")
	r.register("signed_by_admin", `(?i)"signed_by"\s*:\s*"admin"`, cat, 80, "Admin signature claim")
	r.register("custody_claim", `(?i)"chain_of_custody"\s*:\s*"authentic"`, cat, 70, "Chain-of-custody claim")
	r.register("tamper_proof_claim", `(?i)"tamper_proof"\s*:\s*true`, cat, 70, "Tamper-proof claim")
}

// --- POPULARITY PUMPING (ranking-manipulation scenario) ---
func (r *Registry) registerPopularityPumpingPatterns() {
	cat := CategoryPopularityPumping

	r.register("popularity_score_inflation", `(?i)POPULARITY_SCORE\s*=\s*[0-9]{4,}`, cat, 70, "Inflated popularity score")
	r.register("engagement_inflation", `(?i)(ENGAGEMENT_RATE\s*=\s*100%|UPVOTES\s*=\s*[0-9]{5,})`, cat, 70, "Inflated engagement metrics")
	r.register("trend_inflation", `(?i)(TRENDING_COEFFICIENT|VIRAL_MULTIPLIER)\s*=\s*(MAXIMUM|INFINITE|EXTREME)`, cat, 70, "Inflated trend coefficients")
	r.register("authority_inflation", `(?i)(RELEVANCE_BOOST|AUTHORITY_SCORE)\s*=\s*(EXTREME|SUPREME|MAXIMUM)`, cat, 70, "Inflated authority markers")
}

// --- CROSS-SOURCE INCONSISTENCY (multi-cloud confusion scenario) ---
func (r *Registry) registerCrossSourcePatterns() {
	cat := CategoryCrossSource

	r.register("multi_cloud_mismatch", `(?i)"multi_cloud_mismatch"\s*:\s*true`, cat, 65, "Declared multi-cloud mismatch")
	r.register("source_confusion", `(?i)"source_confusion"\s*:\s*"intentional"`, cat, 70, "Intentional source confusion")
	r.register("version_conflict", `(?i)"conflict"\s*:\s*true`, cat, 60, "Declared version conflict")
	r.register("canonical_divergence", `(?i)"(gcp|s3|azure)_canonical"\s*:\s*"(tampered|authentic)"`, cat, 65, "Divergent canonical copies")
}

// --- DELAYED ACTIVATION (time-bomb scenario) ---
func (r *Registry) registerDelayedActivationPatterns() {
	cat := CategoryDelayedActivation

	r.register("activation_gate", `(?i)(ACTIVATE_AFTER|DORMANT_UNTIL|TRIGGER_DATE)\s*=\s*[0-9]{4}-[0-9]{2}-[0-9]{2}`, cat, 90, "Date-gated activation directive")
	r.register("time_bomb_marker", `(?i)TIME_BOMB`, cat, 85, "Time bomb marker")
	r.register("delayed_exploit", `(?i)(DELAYED_EXPLOIT|SCHEDULED_ATTACK)`, cat, 85, "Scheduled exploit marker")
}

// --- STALE SIGNATURE REPLAY (replay scenario) ---
func (r *Registry) registerSignatureReplayPatterns() {
	cat := CategorySignatureReplay

	r.register("validation_bypass", `(?i)(TIMESTAMP_CHECK_DISABLED|TEMPORAL_VALIDATION_BYPASSED|FRESHNESS_CHECK_SKIPPED)`, cat, 80, "Disabled freshness validation")
	r.register("replay_marker", `(?i)(REPLAY_ALLOWED|OLD_SIGNATURE_REUSED|CACHED_SIGNATURE_ACCEPTED)`, cat, 80, "Signature replay marker")
	r.register("forced_signature_valid", `(?i)SIGNATURE_VALID\s*=\s*true`, cat, 70, "Forced signature validity")
}
