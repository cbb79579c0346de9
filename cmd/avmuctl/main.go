// Command avmuctl drives one or more VMUs from a YAML deployment
// configuration: it initializes every configured unit, runs its sweep
// plan, and either exits after one synchronous measurement or streams
// asynchronously until interrupted — grounded on the teacher's main.go
// flag handling (-config, -debug) and its startup sequencing (load config,
// bring up optional exporters, then run).
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AkelaInc/avmu"
	"github.com/AkelaInc/avmu/diagnostics"
	"github.com/AkelaInc/avmu/internal/config"
	"github.com/AkelaInc/avmu/metrics"
	"github.com/AkelaInc/avmu/telemetry"
)

// receiveHighWaterMark mirrors the default passed to pipeline.New; used
// only to flag when diagnostics.Collect reports a path at saturation.
const receiveHighWaterMark = 64

func main() {
	configFile := flag.String("config", "config.yaml", "Path to deployment configuration file")
	debug := flag.Bool("debug", false, "Enable verbose logging")
	once := flag.Bool("once", false, "Run one sweep per unit then exit, overriding the plan's async setting")
	flag.Parse()

	if err := run(*configFile, *debug, *once); err != nil {
		log.Fatalf("avmuctl: %v", err)
	}
}

func run(configFile string, debug, forceOnce bool) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}

	m := metrics.New(prometheus.DefaultRegisterer)
	if cfg.Prometheus.Enabled {
		go serveMetrics(cfg.Prometheus.Listen)
	}

	var pub *telemetry.Publisher
	if cfg.MQTT.Enabled {
		pub, err = telemetry.New(&telemetry.Config{
			Broker:   cfg.MQTT.Broker,
			Username: cfg.MQTT.Username,
			Password: cfg.MQTT.Password,
			Topic:    cfg.MQTT.Topic,
			TLS: telemetry.TLSConfig{
				Enabled:    cfg.MQTT.TLS.Enabled,
				CACert:     cfg.MQTT.TLS.CACert,
				ClientCert: cfg.MQTT.TLS.ClientCert,
				ClientKey:  cfg.MQTT.TLS.ClientKey,
			},
		})
		if err != nil {
			return fmt.Errorf("avmuctl: mqtt publisher: %w", err)
		}
		defer pub.Close()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	tasks := make([]*avmu.Task, 0, len(cfg.Units))
	defer func() {
		for _, t := range tasks {
			_ = t.Delete()
		}
	}()

	for _, unit := range cfg.Units {
		task, err := bringUp(ctx, unit, debug, m)
		if err != nil {
			return fmt.Errorf("avmuctl: unit %q: %w", unit.Name, err)
		}
		tasks = append(tasks, task)
		m.SetTaskState(unit.Name, int(task.State()))

		if forceOnce || task.GetMeasurementType() == avmu.ProgramSync {
			if err := runSyncOnce(ctx, unit.Name, task, m, pub); err != nil {
				return fmt.Errorf("avmuctl: unit %q: %w", unit.Name, err)
			}
			continue
		}
		if err := runAsyncUntilCanceled(ctx, unit.Name, task, m, pub); err != nil {
			return fmt.Errorf("avmuctl: unit %q: %w", unit.Name, err)
		}
	}
	return nil
}

func serveMetrics(listen string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(listen, mux); err != nil {
		log.Printf("avmuctl: metrics server stopped: %v", err)
	}
}

func bringUp(ctx context.Context, unit config.UnitConfig, debug bool, m *metrics.Metrics) (*avmu.Task, error) {
	task, err := avmu.NewTask()
	if err != nil {
		return nil, err
	}
	if err := task.SetIPAddress(unit.IPv4); err != nil {
		return nil, err
	}
	if err := task.SetIPPort(unit.Port); err != nil {
		return nil, err
	}
	if unit.TimeoutMs > 0 {
		_ = task.SetTimeout(unit.TimeoutMs)
	}

	progress := func(percent int) bool {
		if debug {
			log.Printf("%s: prom download %d%%", unit.Name, percent)
		}
		return true
	}
	promStart := time.Now()
	if err := task.Initialize(ctx, progress); err != nil {
		return nil, fmt.Errorf("initialize: %w", err)
	}
	m.ObservePromDownload(time.Since(promStart).Seconds())

	if err := applySweepPlan(task, unit.Plan); err != nil {
		return nil, fmt.Errorf("configure: %w", err)
	}
	if err := task.Start(ctx); err != nil {
		return nil, fmt.Errorf("start: %w", err)
	}
	return task, nil
}

func applySweepPlan(task *avmu.Task, plan config.SweepPlan) error {
	hop, err := parseHopRate(plan.HopRate)
	if err != nil {
		return err
	}
	if err := task.SetHopRate(hop); err != nil {
		return err
	}

	if plan.Async {
		if err := task.SetMeasurementType(avmu.ProgramAsync); err != nil {
			return err
		}
	}

	freqs := avmu.UtilGenerateLinearSweep(plan.StartMHz, plan.EndMHz, plan.Points)
	if err := task.SetFrequencies(freqs); err != nil {
		return err
	}

	for _, b := range plan.ExclusionBands {
		if err := task.AddExclusionBand(b.StartMHz, b.StopMHz); err != nil {
			return err
		}
	}
	for _, p := range plan.Paths {
		if err := task.AddPathToMeasure(avmu.Path(p.Tx), avmu.Path(p.Rx)); err != nil {
			return err
		}
	}
	if plan.IfGainDb != nil {
		if err := task.SetIfGain(avmu.IfGain(*plan.IfGainDb)); err != nil {
			return err
		}
	}
	if plan.Pad12dB {
		if err := task.SetPad12dB(true); err != nil {
			return err
		}
	}
	if plan.AttenuationDb != nil {
		if err := task.SetAttenuation(*plan.AttenuationDb); err != nil {
			return err
		}
	}
	if plan.EncoderEnabled {
		if err := task.SetEncoder(avmu.EncoderFeature{Enabled: true}); err != nil {
			return err
		}
	}
	if plan.SerialPortBytes > 0 {
		if err := task.SetSerialPort(avmu.SerialPortFeature{Enabled: true, BufferSize: plan.SerialPortBytes}); err != nil {
			return err
		}
	}
	return nil
}

func parseHopRate(name string) (avmu.HopRate, error) {
	rates := map[string]avmu.HopRate{
		"90k": avmu.Hop90K, "45k": avmu.Hop45K, "30k": avmu.Hop30K, "15k": avmu.Hop15K,
		"7k": avmu.Hop7K, "3k": avmu.Hop3K, "2k": avmu.Hop2K, "1k": avmu.Hop1K,
		"550": avmu.Hop550, "312": avmu.Hop312, "156": avmu.Hop156,
		"78": avmu.Hop78, "39": avmu.Hop39, "20": avmu.Hop20,
	}
	rate, ok := rates[name]
	if !ok {
		return avmu.HopUndefined, fmt.Errorf("avmuctl: unknown hop_rate %q", name)
	}
	return rate, nil
}

func runSyncOnce(ctx context.Context, name string, task *avmu.Task, m *metrics.Metrics, pub *telemetry.Publisher) error {
	start := time.Now()
	if err := task.Measure(ctx); err != nil {
		recordTransportError(m, err)
		return err
	}
	m.ObserveMeasureDuration(name, time.Since(start).Seconds())

	for i := 0; ; i++ {
		path, err := task.PathAt(i)
		if err != nil {
			break
		}
		data, err := task.ExtractSweepData(path.Tx, path.Rx)
		if err != nil {
			log.Printf("%s: %s: %v", name, path, err)
			continue
		}
		m.RecordSweepCompleted(name, path.String())
		publishSummary(pub, name, path.String(), data)
	}
	return task.Stop(ctx)
}

func runAsyncUntilCanceled(ctx context.Context, name string, task *avmu.Task, m *metrics.Metrics, pub *telemetry.Publisher) error {
	if err := task.BeginAsync(ctx); err != nil {
		return err
	}
	defer task.HaltAsync(ctx)

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	healthTicker := time.NewTicker(2 * time.Second)
	defer healthTicker.Stop()

	numPaths := task.MeasuredPathCount()
	lastLostSweeps := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-healthTicker.C:
			m.UpdateResourceMetrics()
			if lost := task.LostSweepCount(); lost > lastLostSweeps {
				for i := 0; i < lost-lastLostSweeps; i++ {
					m.RecordLostSweep(name)
				}
				lastLostSweeps = lost
			}
			report, err := diagnostics.Collect(ctx, task.QueueDepth, numPaths, receiveHighWaterMark)
			if err != nil {
				log.Printf("%s: diagnostics: %v", name, err)
				continue
			}
			for i, depth := range report.QueueDepths {
				path, err := task.PathAt(i)
				if err != nil {
					break
				}
				m.SetQueueDepth(name, path.String(), depth)
			}
			if report.Saturated {
				log.Printf("%s: receive queue saturated (cpu=%.1f%%, depths=%v)", name, report.CPUPercent, report.QueueDepths)
			}
		case <-ticker.C:
			if err := task.MeasureAsync(); err != nil {
				recordTransportError(m, err)
				return err
			}
			for i := 0; ; i++ {
				path, err := task.PathAt(i)
				if err != nil {
					break
				}
				data, err := task.ExtractSweepData(path.Tx, path.Rx)
				if err != nil {
					continue
				}
				m.RecordSweepCompleted(name, path.String())
				publishSummary(pub, name, path.String(), data)
			}
		}
	}
}

// recordTransportError tags the transport-error counter with the failing
// operation's Kind when err is an *avmu.Error, a no-op otherwise.
func recordTransportError(m *metrics.Metrics, err error) {
	var aerr *avmu.Error
	if errors.As(err, &aerr) {
		m.RecordTransportError(aerr.Kind.String())
	}
}

func publishSummary(pub *telemetry.Publisher, taskID, path string, data *avmu.SweepDataStruct) {
	if pub == nil {
		return
	}
	err := pub.Publish(telemetry.SweepSummary{
		TaskID:      taskID,
		Path:        path,
		SweepNumber: data.SweepNumber,
		NumPoints:   len(data.Points),
		Timestamp:   data.ReceivedAt,
	})
	if err != nil {
		log.Printf("%s: telemetry publish failed: %v", taskID, err)
	}
}
