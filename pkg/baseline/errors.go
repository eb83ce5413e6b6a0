package baseline

import (
	"errors"
	"fmt"
)

// EmptyPopulationError is returned when summary statistics are requested
// on a population with zero observations. Returning an explicit error
// instead of NaN keeps downstream scoring honest.
type EmptyPopulationError struct {
	Population string
}

func (e *EmptyPopulationError) Error() string {
	return fmt.Sprintf("population %q has no observations", e.Population)
}

// IsEmptyPopulation reports whether err is an EmptyPopulationError.
func IsEmptyPopulation(err error) bool {
	var e *EmptyPopulationError
	return errors.As(err, &e)
}
