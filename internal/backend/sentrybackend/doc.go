// Package sentrybackend reports spans and events to Sentry through
// sentry-go.
//
// The backend owns its own *sentry.Hub built from sentry.NewClient and never
// touches the global hub. Each traced request gets a clone of that hub on its
// context, so scope data such as breadcrumbs and extras stays per request.
package sentrybackend
