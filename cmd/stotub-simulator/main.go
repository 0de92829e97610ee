package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ks-vishal/stot-ub/pkg/config"
	"github.com/ks-vishal/stot-ub/pkg/logger"
	"github.com/ks-vishal/stot-ub/pkg/mqtt"

	"go.uber.org/zap"
)

// 模拟器：按固定节奏向 MQTT 发布传感器样本，
// 在起终点之间线性插值位置，用于本地联调。

type route struct {
	startLat, startLng float64
	endLat, endLng     float64
}

type simPayload struct {
	Timestamp    string   `json:"timestamp"`
	Temperature  float64  `json:"temperature"`
	Humidity     float64  `json:"humidity"`
	Altitude     float64  `json:"altitude"`
	Latitude     float64  `json:"latitude"`
	Longitude    float64  `json:"longitude"`
	Speed        *float64 `json:"speed,omitempty"`
	BatteryLevel *float64 `json:"batteryLevel,omitempty"`
	Vibration    *float64 `json:"vibration,omitempty"`
	MessageID    string   `json:"message_id,omitempty"`
}

func main() {
	var (
		shipments  = flag.String("shipments", "SHIP-sim-1", "comma separated shipment ids to publish for")
		interval   = flag.Duration("interval", 5*time.Second, "publish interval per shipment")
		duration   = flag.Duration("duration", 30*time.Minute, "simulated flight duration")
		faultEvery = flag.Int("fault-every", 0, "inject an out-of-range temperature every N samples (0 = never)")
	)
	flag.Parse()

	log, err := logger.NewLogger("info", "console", "stotub-simulator")
	if err != nil {
		panic(fmt.Sprintf("Failed to init logger: %v", err))
	}
	defer log.Sync()

	mqttCfg := config.MQTTConfig{
		Broker:   "tcp://localhost:1883",
		ClientID: "stotub-simulator",
		QoS:      1,
	}
	mqttCfg.LoadFromEnv("MQTT")
	client, err := mqtt.NewClient(&mqttCfg)
	if err != nil {
		log.Fatal("Failed to connect mqtt broker", zap.Error(err))
	}
	defer client.Disconnect()

	ids := strings.Split(*shipments, ",")
	r := route{
		startLat: 40.4168, startLng: -3.7038, // Madrid
		endLat: 41.3851, endLng: 2.1734, // Barcelona
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	start := time.Now()
	seq := 0
	log.Info("Simulator started",
		zap.Strings("shipments", ids),
		zap.Duration("interval", *interval),
	)

	for {
		select {
		case <-sigChan:
			log.Info("Simulator stopped")
			return
		case now := <-ticker.C:
			seq++
			progress := math.Min(now.Sub(start).Seconds()/duration.Seconds(), 1)
			for _, id := range ids {
				id = strings.TrimSpace(id)
				if id == "" {
					continue
				}
				payload := buildSample(r, progress, seq, *faultEvery)
				data, err := json.Marshal(payload)
				if err != nil {
					log.Error("Failed to marshal sample", zap.Error(err))
					continue
				}
				topic := "stotub/sensors/" + id
				if err := client.Publish(topic, 1, false, data); err != nil {
					log.Warn("Failed to publish sample",
						zap.String("topic", topic),
						zap.Error(err),
					)
					continue
				}
				log.Info("Published sample",
					zap.String("shipment_id", id),
					zap.Float64("temperature", payload.Temperature),
					zap.Float64("lat", payload.Latitude),
					zap.Float64("lng", payload.Longitude),
				)
			}
		}
	}
}

func buildSample(r route, progress float64, seq, faultEvery int) simPayload {
	lat := r.startLat + (r.endLat-r.startLat)*progress
	lng := r.startLng + (r.endLng-r.startLng)*progress

	// 5±0.8°C 之间抖动，故障注入时推到阈值外
	temp := 5 + (rand.Float64()-0.5)*1.6
	if faultEvery > 0 && seq%faultEvery == 0 {
		temp = 9.5 + rand.Float64()
	}

	speed := 55 + rand.Float64()*10
	battery := math.Max(100-progress*70, 15)
	vibration := rand.Float64() * 2

	return simPayload{
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
		Temperature:  temp,
		Humidity:     55 + (rand.Float64()-0.5)*10,
		Altitude:     120 + rand.Float64()*30,
		Latitude:     lat,
		Longitude:    lng,
		Speed:        &speed,
		BatteryLevel: &battery,
		Vibration:    &vibration,
		MessageID:    fmt.Sprintf("sim-%d", seq),
	}
}
