package profile

import (
	"context"
	"fmt"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/hashicorp/go-multierror"

	"github.com/maspeqc/qcpack/compact"
	"github.com/maspeqc/qcpack/format"
	"github.com/maspeqc/qcpack/internal/options"
	"github.com/maspeqc/qcpack/store"
)

// ChannelResult describes one stored profile.
type ChannelResult struct {
	Channel string
	Samples int // raw trace samples
	Bins    int // stored bins
	Bytes   int // payload size
}

// Report is the outcome of Processor.Process.
type Report struct {
	RunID    int64
	Channels []ChannelResult
	Warnings error // *multierror.Error of skipped channels, nil when none
}

// Processor bins, compacts and stores the pressure profiles of a run.
type Processor struct {
	writer   store.ProfileWriter
	provider TraceProvider
	encoder  *compact.Encoder
	agg      Aggregation
	logger   log.Logger
}

// Option configures a Processor.
type Option = options.Option[*Processor]

// WithLogger sets the logger receiving skipped-channel warnings.
func WithLogger(logger log.Logger) Option {
	return options.NoError(func(p *Processor) {
		if logger != nil {
			p.logger = logger
		}
	})
}

// WithEncoder replaces the default JSON encoder.
func WithEncoder(enc *compact.Encoder) Option {
	return options.NoError(func(p *Processor) {
		if enc != nil {
			p.encoder = enc
		}
	})
}

// WithAggregation replaces Mean.
func WithAggregation(agg Aggregation) Option {
	return options.NoError(func(p *Processor) {
		if agg != nil {
			p.agg = agg
		}
	})
}

// NewProcessor creates a Processor storing into writer.
func NewProcessor(writer store.ProfileWriter, provider TraceProvider, opts ...Option) (*Processor, error) {
	if writer == nil || provider == nil {
		return nil, fmt.Errorf("profile processor requires a writer and a trace provider")
	}

	p := &Processor{
		writer:   writer,
		provider: provider,
		agg:      Mean,
		logger:   log.NewNopLogger(),
	}
	if err := options.Apply(p, opts...); err != nil {
		return nil, err
	}

	if p.encoder == nil {
		enc, err := compact.NewEncoder(format.PayloadJSON, format.CompressionNone)
		if err != nil {
			return nil, err
		}
		p.encoder = enc
	}

	return p, nil
}

// Process stores one profile per channel. A channel whose trace cannot be
// read or binned is skipped and reported in Report.Warnings. Storage failures
// and context cancellation abort the run.
func (p *Processor) Process(ctx context.Context, runID int64, channels []string) (*Report, error) {
	if len(channels) == 0 {
		channels = DefaultChannels
	}

	report := &Report{RunID: runID}
	var warnings *multierror.Error

	for _, ch := range channels {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		res, skip, err := p.processChannel(ctx, runID, ch)
		if err != nil {
			return nil, err
		}
		if skip != nil {
			level.Warn(p.logger).Log("msg", "skipping pressure channel", "run", runID, "channel", ch, "err", skip)
			warnings = multierror.Append(warnings, fmt.Errorf("channel %s: %w", ch, skip))
			continue
		}

		report.Channels = append(report.Channels, res)
	}

	report.Warnings = warnings.ErrorOrNil()

	return report, nil
}

// processChannel returns skip for channel-local failures and err for fatal ones.
func (p *Processor) processChannel(ctx context.Context, runID int64, ch string) (res ChannelResult, skip, err error) {
	times, values, skip := p.provider.Trace(ctx, ch)
	if skip != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return res, nil, ctxErr
		}

		return res, skip, nil
	}

	seconds, binned, skip := Bin(times, values, p.agg)
	if skip != nil {
		return res, skip, nil
	}

	series, err := compact.Compact(seconds, binned, compact.ProfileOptions()...)
	if err != nil {
		return res, nil, err
	}

	data, err := p.encoder.EncodeProfile(compact.ProfileRecord{Series: series, Channel: ch})
	if err != nil {
		return res, nil, fmt.Errorf("encode profile %s: %w", ch, err)
	}

	if err := p.writer.InsertPressureProfile(ctx, store.ProfileRow{
		RunID:    runID,
		Channel:  ch,
		Encoding: p.encoder.Encoding(),
		Data:     data,
	}); err != nil {
		return res, nil, fmt.Errorf("store profile %s: %w", ch, err)
	}

	return ChannelResult{Channel: ch, Samples: len(times), Bins: series.Len(), Bytes: len(data)}, nil, nil
}
