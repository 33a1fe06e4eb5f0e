package notification

import (
	"context"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"

	config "github.com/tigerroll/surfin-flow/pkg/batch/core/config"
	jsl "github.com/tigerroll/surfin-flow/pkg/batch/core/config/jsl"
	"github.com/tigerroll/surfin-flow/pkg/batch/support/util/logger"
)

// NewNotifier publishes to surfin.redis.notification_channel when it is set and logs
// otherwise.
func NewNotifier(lc fx.Lifecycle, cfg *config.Config) Notifier {
	redisCfg := cfg.Surfin.Redis
	if redisCfg.NotificationChannel == "" {
		return NewLogNotifier()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     redisCfg.Addr,
		Password: redisCfg.Password,
		DB:       redisCfg.DB,
	})
	n := NewRedisNotifier(client, redisCfg.NotificationChannel)
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error { return n.Close() },
	})
	logger.Infof("Job notifications are published to redis channel '%s'.", redisCfg.NotificationChannel)
	return n
}

// RegisterNotificationListener registers "notificationJobListener" for job definitions.
func RegisterNotificationListener(registry *jsl.ComponentRegistry, notifier Notifier) {
	registry.Register(jsl.KindJobListener, "notificationJobListener", func(map[string]string) (interface{}, error) {
		return NewNotificationJobListener(notifier), nil
	})
	logger.Debugf("Notification listener registered with the component registry.")
}

// Module provides the Notifier and registers the notification listener builder.
var Module = fx.Options(
	fx.Provide(NewNotifier),
	fx.Invoke(RegisterNotificationListener),
)
