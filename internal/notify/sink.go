package notify

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/raffis/matrun/internal/errdefs"
	"github.com/raffis/matrun/pkg/apis/core/v1beta1"
	"github.com/resend/resend-go/v2"
	"github.com/sethvargo/go-envconfig"
)

// Sink delivers an event to one notification endpoint.
type Sink interface {
	Send(ctx context.Context, event Event) error
}

// Config holds the sink credentials and delivery settings.
// It is read from MATRUN_ prefixed environment variables.
type Config struct {
	ResendAPIKey string        `env:"RESEND_API_KEY"`
	EmailFrom    string        `env:"EMAIL_FROM, default=matrun@localhost"`
	Attempts     uint          `env:"NOTIFY_ATTEMPTS, default=3"`
	Delay        time.Duration `env:"NOTIFY_DELAY, default=1s"`
	Timeout      time.Duration `env:"NOTIFY_TIMEOUT, default=30s"`
}

// LoadConfig reads the Config from lookuper, the process environment if nil.
func LoadConfig(ctx context.Context, lookuper envconfig.Lookuper) (Config, error) {
	if lookuper == nil {
		lookuper = envconfig.OsLookuper()
	}

	var cfg Config
	err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: envconfig.PrefixLookuper("MATRUN_", lookuper),
	})
	if err != nil {
		return cfg, fmt.Errorf("failed to load notification config: %w", err)
	}

	return cfg, nil
}

// NewSink returns the sink for a notification entry.
func NewSink(notification v1beta1.Notification, cfg Config) (Sink, error) {
	client := &http.Client{Timeout: cfg.Timeout}
	httpOpts := []httpOption{
		WithAttempts(cfg.Attempts),
		WithDelay(cfg.Delay),
		WithHTTPClient(client),
	}

	switch notification.Kind {
	case v1beta1.SinkKindWebhook:
		if notification.URL == "" {
			return nil, errdefs.NewConfigurationError("notification %s: webhook requires an url", notification.Name)
		}

		return NewWebhook(notification.URL, httpOpts...), nil
	case v1beta1.SinkKindChat:
		if notification.URL == "" {
			return nil, errdefs.NewConfigurationError("notification %s: chat requires an url", notification.Name)
		}

		return NewChat(notification.URL, httpOpts...), nil
	case v1beta1.SinkKindEmail:
		if len(notification.To) == 0 {
			return nil, errdefs.NewConfigurationError("notification %s: email requires at least one recipient", notification.Name)
		}

		if cfg.ResendAPIKey == "" {
			return nil, errdefs.NewConfigurationError("notification %s: email requires MATRUN_RESEND_API_KEY", notification.Name)
		}

		from := notification.From
		if from == "" {
			from = cfg.EmailFrom
		}

		return NewEmail(resend.NewCustomClient(client, cfg.ResendAPIKey), from, notification.To), nil
	default:
		return nil, errdefs.NewConfigurationError("notification %s: unknown sink kind `%s`", notification.Name, notification.Kind)
	}
}
