// Joint motion - drive a small joint position motion.
//
// Moves joints 4, 5 and 7 along a cosine profile for five seconds,
// either through the blocking control loop or, with -external-loop,
// through an application-owned ReadOnce/WriteOnce cycle.
//
// WARNING: this program moves the robot. Make sure the workspace is
// clear and the user stop button is at hand.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/armlink/go-panda/internal/config"
	"github.com/armlink/go-panda/internal/log"
	"github.com/armlink/go-panda/pkg/panda"
)

const motionDuration = 5 * time.Second

func main() {
	externalLoop := flag.Bool("external-loop", false, "own the tick cadence via ReadOnce/WriteOnce")
	flag.Parse()

	cfg := config.FromEnv()
	log.Init(cfg.LogLevel)

	fmt.Println("WARNING: This example will move the robot!")
	fmt.Println("Please make sure to have the user stop button at hand!")
	fmt.Println("Press Enter to continue...")
	bufio.NewReader(os.Stdin).ReadString('\n')

	robot, err := panda.Open(cfg.Host, &panda.Options{Port: cfg.Port, Timeout: cfg.NetworkTimeout()})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: connect to %s: %v\n", cfg.Host, err)
		os.Exit(1)
	}
	defer robot.Close()

	var initial [7]float64
	elapsed := time.Duration(0)
	started := false

	callback := func(state *panda.RobotState, period time.Duration) (*panda.MotionCommand, *panda.ControllerCommand) {
		elapsed += period
		if !started {
			initial = state.QD
			started = true
		}

		delta := math.Pi / 8.0 * (1 - math.Cos(math.Pi/2.5*elapsed.Seconds()))
		cmd := &panda.MotionCommand{Q: initial}
		cmd.Q[3] += delta
		cmd.Q[4] += delta
		cmd.Q[6] += delta

		if elapsed >= motionDuration {
			fmt.Println("\nFinished motion, shutting down example")
			cmd.MotionFinished = true
		}
		return cmd, nil
	}

	if *externalLoop {
		err = runExternalLoop(robot, callback)
	} else {
		err = robot.Control(panda.ControllerModeJointImpedance, panda.MotionGeneratorModeJointPosition, callback)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// runExternalLoop drives the same callback with an application-owned
// cadence instead of the blocking Control pump.
func runExternalLoop(robot *panda.Robot, callback panda.ControlFunc) error {
	ctrl, err := robot.StartControl(panda.ControllerModeJointImpedance, panda.MotionGeneratorModeJointPosition,
		panda.DefaultDeviation, panda.DefaultDeviation)
	if err != nil {
		return err
	}

	for {
		state, period, err := ctrl.ReadOnce()
		if err != nil {
			return err
		}
		motion, control := callback(&state, period)
		if err := ctrl.WriteOnce(motion, control); err != nil {
			return err
		}
		if motion != nil && motion.MotionFinished {
			return nil
		}
	}
}
