package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// Reading mirrors the envelope the service publishes
type Reading struct {
	Asset     string             `json:"asset"`
	Timestamp string             `json:"timestamp"`
	Key       string             `json:"key"`
	Readings  map[string]float64 `json:"readings"`
}

func main() {
	broker := flag.String("broker", "tcp://localhost:1883", "MQTT broker address")
	username := flag.String("username", "", "MQTT username")
	password := flag.String("password", "", "MQTT password")
	prefix := flag.String("prefix", "pt100", "topic prefix of the service")
	mode := flag.String("mode", "tail", "mode: tail, config")
	pins := flag.String("pins", "", "new pins value (config mode)")
	assetPrefix := flag.String("asset-prefix", "", "new assetNamePrefix value (config mode)")
	interval := flag.Int("poll-interval", 0, "new pollInterval in milliseconds (config mode)")
	flag.Parse()

	opts := paho.NewClientOptions()
	opts.AddBroker(*broker)
	opts.SetClientID(fmt.Sprintf("pt100-test-%d", time.Now().Unix()))
	if *username != "" {
		opts.SetUsername(*username)
		opts.SetPassword(*password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		fmt.Printf("connection lost: %v\n", err)
	})

	client := paho.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		fmt.Printf("failed to connect to MQTT broker: %v\n", token.Error())
		os.Exit(1)
	}

	fmt.Printf("connected to MQTT broker: %s\n", *broker)

	switch *mode {
	case "tail":
		tailReadings(client, *prefix)
	case "config":
		values := map[string]interface{}{}
		if *pins != "" {
			values["pins"] = *pins
		}
		if *assetPrefix != "" {
			values["assetNamePrefix"] = *assetPrefix
		}
		if *interval > 0 {
			values["pollInterval"] = *interval
		}
		publishConfig(client, *prefix, values)
	default:
		fmt.Println("unknown mode, use tail or config")
		os.Exit(1)
	}
}

// publishConfig sends a reconfiguration request to the control topic
func publishConfig(client paho.Client, prefix string, values map[string]interface{}) {
	defer client.Disconnect(250)

	if len(values) == 0 {
		fmt.Println("nothing to change, set -pins, -asset-prefix or -poll-interval")
		return
	}

	jsonData, err := json.Marshal(values)
	if err != nil {
		fmt.Printf("JSON encoding failed: %v\n", err)
		return
	}

	topic := strings.TrimSuffix(prefix, "/") + "/config"
	token := client.Publish(topic, 1, false, jsonData)
	token.Wait()

	if token.Error() != nil {
		fmt.Printf("failed to publish: %v\n", token.Error())
	} else {
		fmt.Printf("published configuration to %s: %s\n", topic, string(jsonData))
	}
}

// tailReadings prints every JSON reading published under prefix
func tailReadings(client paho.Client, prefix string) {
	topic := strings.TrimSuffix(prefix, "/") + "/#"
	controlTopic := strings.TrimSuffix(prefix, "/") + "/config"

	token := client.Subscribe(topic, 0, func(_ paho.Client, msg paho.Message) {
		if msg.Topic() == controlTopic {
			return
		}

		var reading Reading
		if err := json.Unmarshal(msg.Payload(), &reading); err != nil {
			fmt.Printf("[%s] %d bytes (not JSON)\n", msg.Topic(), len(msg.Payload()))
			return
		}

		fmt.Printf("[%s] %s %.2f°C key=%s\n", reading.Timestamp, reading.Asset, reading.Readings["temperature"], reading.Key)
	})
	token.Wait()
	if token.Error() != nil {
		fmt.Printf("failed to subscribe to %s: %v\n", topic, token.Error())
		os.Exit(1)
	}

	fmt.Printf("tailing %s\n", topic)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	fmt.Println("disconnecting...")
	client.Disconnect(250)
}
