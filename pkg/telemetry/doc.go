// Package telemetry provides logging, tracing and metrics for forge.
//
// A Telemetry bundles a zerolog-based Logger, an OpenTelemetry Tracer and a
// set of Prometheus Metrics. It is built once per invocation from the
// telemetry section of the settings:
//
//	tel, err := telemetry.NewTelemetry(ctx, telemetry.FromSettings(settings.Telemetry, version))
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.WithoutCancel(ctx))
//
// # Logging
//
// Packages that take a zerolog.Logger receive tel.Logger.Zerolog(). Run
// scoped fields are added with the With helpers:
//
//	logger := tel.Logger.NewComponentLogger("engine").
//	    WithProfile("developer").
//	    WithStage("pillar", "gaming")
//	logger.Info("Starting stage")
//
// # Tracing
//
// NewTracer installs its provider globally. The engine starts run, stage
// and step spans through otel.Tracer, so they share the configured
// exporter: none, stdout (written to stderr) or otlp over gRPC.
//
// # Metrics
//
// Metrics implements engine.Observer. Step, stage, prompt and run counts
// and durations are kept on a private registry and written to a
// node_exporter textfile on Shutdown when a metrics file is configured.
//
// # Context Helpers
//
//	ic := telemetry.StartOperation(ctx, "profile.validate",
//	    telemetry.AttrProfile.String(name))
//	err := validate(ic.Ctx)
//	ic.End(err)
package telemetry
