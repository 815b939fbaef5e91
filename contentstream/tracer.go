package contentstream

import "github.com/wudi/pdfimages/observability"

// Tracer logs each interpreted operator; useful when diagnosing why an
// image was or was not discovered on a page.
type Tracer struct {
	log observability.Logger
}

func NewTracer(log observability.Logger) *Tracer {
	if log == nil {
		log = observability.NopLogger{}
	}
	return &Tracer{log: log}
}

func (t *Tracer) Operator(op string, operands int) {
	t.log.Debug("content operator",
		observability.String("op", op),
		observability.Int("operands", operands))
}

func (t *Tracer) Image(kind, name string) {
	t.log.Debug("image painted",
		observability.String("kind", kind),
		observability.String("name", name))
}
