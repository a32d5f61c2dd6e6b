package command

import (
	"fmt"
	"time"

	"github.com/pixelmine/shopd/internal/router"
	"github.com/pixil98/go-errors"
)

type RouterConfig struct {
	SessionTTL string `json:"session_ttl"`
	OpTimeout  string `json:"op_timeout"`
}

func (c *RouterConfig) Validate() error {
	el := errors.NewErrorList()

	if c.SessionTTL != "" {
		_, err := time.ParseDuration(c.SessionTTL)
		if err != nil {
			el.Add(fmt.Errorf("parsing session_ttl: %w", err))
		}
	}
	if c.OpTimeout != "" {
		_, err := time.ParseDuration(c.OpTimeout)
		if err != nil {
			el.Add(fmt.Errorf("parsing op_timeout: %w", err))
		}
	}

	return el.Err()
}

func (c *RouterConfig) BuildRouterOpts() ([]router.Opt, error) {
	var opts []router.Opt

	if c.SessionTTL != "" {
		d, err := time.ParseDuration(c.SessionTTL)
		if err != nil {
			return nil, fmt.Errorf("parsing session_ttl: %w", err)
		}
		opts = append(opts, router.WithSessionTTL(d))
	}
	if c.OpTimeout != "" {
		d, err := time.ParseDuration(c.OpTimeout)
		if err != nil {
			return nil, fmt.Errorf("parsing op_timeout: %w", err)
		}
		opts = append(opts, router.WithOpTimeout(d))
	}

	return opts, nil
}
