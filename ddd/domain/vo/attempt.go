package vo

import "time"

// Header is a single request header a persona sends.
type Header struct {
	Name  string
	Value string
}

// Persona is the client identity an attempt presents to the source.
type Persona struct {
	Client             string
	UserAgent          string
	Headers            []Header
	CookiesFromBrowser string
	Retries            int
	ExtraArgs          []string
}

// Attempt 描述一次获取尝试，构造后不可变
type Attempt struct {
	name     string
	persona  Persona
	selector string
	backoff  time.Duration
}

// NewAttempt copies the persona slices so later mutation of the input cannot leak in.
func NewAttempt(name string, persona Persona, selector string, backoff time.Duration) Attempt {
	p := persona
	p.Headers = append([]Header(nil), persona.Headers...)
	p.ExtraArgs = append([]string(nil), persona.ExtraArgs...)
	return Attempt{name: name, persona: p, selector: selector, backoff: backoff}
}

func (a Attempt) Name() string     { return a.name }
func (a Attempt) Selector() string { return a.selector }

// BackoffHint is the base delay applied before this attempt, zero means use the engine default.
func (a Attempt) BackoffHint() time.Duration { return a.backoff }

// Persona returns a copy so callers cannot alter the descriptor.
func (a Attempt) Persona() Persona {
	p := a.persona
	p.Headers = append([]Header(nil), a.persona.Headers...)
	p.ExtraArgs = append([]string(nil), a.persona.ExtraArgs...)
	return p
}

// WithSelector returns a new attempt differing only in selector.
func (a Attempt) WithSelector(selector string) Attempt {
	return NewAttempt(a.name, a.persona, selector, a.backoff)
}
