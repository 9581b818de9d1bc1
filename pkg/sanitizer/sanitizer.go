package sanitizer

// Strategy transforms one string; a Pipeline applies strategies in order.
type Strategy func(string) string

type Pipeline []Strategy

func (p Pipeline) Apply(s string) string {
	for _, fn := range p {
		s = fn(s)
	}
	return s
}
