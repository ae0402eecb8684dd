// Package plugin installs error tracking and performance monitoring into a
// gin application.
//
// Init merges a flat settings map over the loaded SentryConfig and builds the
// tracing backend only when a DSN is configured. Without a DSN the plugin is
// inert: errors are still logged through zap but nothing is sent.
//
//	p := plugin.New(cfg.Sentry, plugin.WithLogger(logger), plugin.WithRegistry(registry))
//	if err := p.Init(ctx, nil); err != nil {
//		return err
//	}
//	p.Install(router)
//	defer p.Close(context.Background())
package plugin
