// Echo state - print robot state samples from the 1 kHz stream.
//
// Connects to the robot, polls a handful of states without commanding
// anything, and prints them as JSON. Useful as a first connectivity
// check of a freshly cabled robot.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/armlink/go-panda/internal/config"
	"github.com/armlink/go-panda/internal/log"
	"github.com/armlink/go-panda/pkg/panda"
)

func main() {
	configPath := flag.String("config", "", "path to a robot YAML config (default: ROBOT_HOST env)")
	count := flag.Int("n", 10, "number of state samples to print")
	flag.Parse()

	var cfg *config.Robot
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	} else {
		cfg = config.FromEnv()
	}
	log.Init(cfg.LogLevel)

	robot, err := panda.Open(cfg.Host, &panda.Options{Port: cfg.Port, Timeout: cfg.NetworkTimeout()})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: connect to %s: %v\n", cfg.Host, err)
		os.Exit(1)
	}
	defer robot.Close()

	for i := 0; i < *count; i++ {
		state, err := robot.Update(nil, nil)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		out, err := json.Marshal(state)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(string(out))
	}
}
