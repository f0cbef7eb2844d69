package provider

import (
	"context"

	"github.com/wonny/eodsnap/pkg/logger"
)

// Failover asks the secondary source for the symbols the primary could
// not serve. When both fail, the primary's failure is kept so that retry
// decisions see a stable code.
type Failover struct {
	primary   QuoteSource
	secondary QuoteSource
	logger    *logger.Logger
}

// NewFailover returns primary unchanged when there is no secondary
func NewFailover(primary, secondary QuoteSource, log *logger.Logger) QuoteSource {
	if secondary == nil {
		return primary
	}
	return &Failover{primary: primary, secondary: secondary, logger: log.WithComponent("failover")}
}

// Name returns both source names
func (f *Failover) Name() string {
	return f.primary.Name() + "+" + f.secondary.Name()
}

// Quotes never returns a call-level error; failures are per symbol
func (f *Failover) Quotes(ctx context.Context, symbols []string) (map[string]QuoteOutcome, error) {
	out, err := f.primary.Quotes(ctx, symbols)
	if out == nil {
		out = make(map[string]QuoteOutcome, len(symbols))
	}

	var pending []string
	for _, sym := range symbols {
		o, ok := out[sym]
		switch {
		case err != nil:
			out[sym] = QuoteOutcome{Err: err}
			pending = append(pending, sym)
		case !ok || o.Err != nil:
			pending = append(pending, sym)
		}
	}
	if len(pending) == 0 {
		return out, nil
	}

	second, err2 := f.secondary.Quotes(ctx, pending)
	if err2 != nil {
		f.logger.WithError(err2).WithField("symbols", len(pending)).Warn("Secondary quote source failed")
		return out, nil
	}

	served := 0
	for _, sym := range pending {
		if o, ok := second[sym]; ok && o.Err == nil && o.Quote != nil {
			out[sym] = o
			served++
		}
	}
	f.logger.WithFields(map[string]interface{}{
		"pending": len(pending),
		"served":  served,
	}).Debug("Secondary quote source consulted")

	return out, nil
}
