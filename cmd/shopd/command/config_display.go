package command

import (
	"fmt"
	"time"

	"github.com/pixelmine/shopd/internal/display"
	"github.com/pixil98/go-errors"
)

type DisplayConfig struct {
	Radius        float64 `json:"radius"`
	Template      string  `json:"template,omitempty"`
	WrapWidth     int     `json:"wrap_width"`
	RenderTimeout string  `json:"render_timeout"`
}

func (c *DisplayConfig) Validate() error {
	el := errors.NewErrorList()

	if c.Radius < 0 {
		el.Add(fmt.Errorf("radius must not be negative"))
	}
	if c.WrapWidth < 0 {
		el.Add(fmt.Errorf("wrap_width must not be negative"))
	}
	if c.RenderTimeout != "" {
		_, err := time.ParseDuration(c.RenderTimeout)
		if err != nil {
			el.Add(fmt.Errorf("parsing render_timeout: %w", err))
		}
	}
	if c.Template != "" {
		_, err := display.NewLabel(c.Template, c.WrapWidth)
		if err != nil {
			el.Add(fmt.Errorf("parsing template: %w", err))
		}
	}

	return el.Err()
}

func (c *DisplayConfig) BuildDisplayOpts() ([]display.Opt, error) {
	var opts []display.Opt

	label, err := display.NewLabel(c.Template, c.WrapWidth)
	if err != nil {
		return nil, fmt.Errorf("parsing template: %w", err)
	}
	opts = append(opts, display.WithLabel(label))

	if c.Radius > 0 {
		opts = append(opts, display.WithRadius(c.Radius))
	}
	if c.RenderTimeout != "" {
		d, err := time.ParseDuration(c.RenderTimeout)
		if err != nil {
			return nil, fmt.Errorf("parsing render_timeout: %w", err)
		}
		opts = append(opts, display.WithRenderTimeout(d))
	}

	return opts, nil
}
