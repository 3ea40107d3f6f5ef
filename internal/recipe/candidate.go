package recipe

import "fmt"

// Candidate is the result of one parse attempt: either a parsed JSON value or
// the reason parsing failed.
type Candidate struct {
	value  any
	err    error
	parsed bool
}

func Parsed(v any) Candidate {
	return Candidate{value: v, parsed: true}
}

func Unparsed(err error) Candidate {
	if err == nil {
		err = fmt.Errorf("unparsed")
	}
	return Candidate{err: err}
}

func (c Candidate) OK() bool { return c.parsed }

func (c Candidate) Value() any { return c.value }

func (c Candidate) Err() error { return c.err }
