package cmd

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/adchub/adchub/adc"
)

var pingCmd = &cobra.Command{
	Use:   "ping <addr>",
	Short: "probe an ADC hub and print its handshake response",
	Args:  cobra.ExactArgs(1),
	RunE:  runPing,
}

func init() {
	Root.AddCommand(pingCmd)
}

// runPing performs just enough of the client side of the handshake
// (HSUP/ISUP, ISID) to report whether a hub is reachable and what features
// it advertises, without ever reaching StateNormal.
func runPing(cmd *cobra.Command, args []string) error {
	addr := strings.TrimPrefix(args[0], "adc://")
	start := time.Now()

	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		return err
	}
	defer conn.Close()

	own := adc.NewFeatureSet(adc.FeaBASE, adc.FeaTIGR)
	if _, err := fmt.Fprintf(conn, "H%s %s\n", adc.CmdSUP, adc.JoinFeatures(own.Sorted())); err != nil {
		return err
	}

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	r := bufio.NewReader(conn)
	for i := 0; i < 4; i++ {
		line, err := r.ReadString('\n')
		if err != nil {
			return err
		}
		line = strings.TrimRight(line, "\r\n")
		fmt.Println(line)
		if strings.HasPrefix(line, "I"+adc.CmdSID) {
			break
		}
	}
	fmt.Printf("round-trip: %s\n", time.Since(start))
	return nil
}
