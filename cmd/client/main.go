// Command client submits stamp touch points to a verification server and
// checks the returned token against the server's public key.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/atinyakov/smartstamp/internal/client"
	"github.com/atinyakov/smartstamp/internal/credential"
	"github.com/atinyakov/smartstamp/internal/fingerprint"
)

var (
	version   string
	buildDate string
)

// parsePoints reads "x,y;x,y;..." into points.
func parsePoints(s string) ([]fingerprint.Point, error) {
	var points []fingerprint.Point
	for _, pair := range strings.Split(s, ";") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		xy := strings.Split(pair, ",")
		if len(xy) != 2 {
			return nil, fmt.Errorf("point %q: want x,y", pair)
		}
		x, err := strconv.ParseFloat(strings.TrimSpace(xy[0]), 64)
		if err != nil {
			return nil, fmt.Errorf("point %q: %w", pair, err)
		}
		y, err := strconv.ParseFloat(strings.TrimSpace(xy[1]), 64)
		if err != nil {
			return nil, fmt.Errorf("point %q: %w", pair, err)
		}
		points = append(points, fingerprint.Point{X: x, Y: y})
	}
	return points, nil
}

// main parses command-line flags, runs one verification and prints the result.
func main() {
	var (
		baseURL   string
		apiKey    string
		pointsStr string
		caFile    string
		timeout   time.Duration
		showVer   bool
	)

	flag.StringVar(&baseURL, "url", "http://localhost:8000", "server base URL")
	flag.StringVar(&apiKey, "key", os.Getenv("STAMP_API_KEY"), "client API key")
	flag.StringVar(&pointsStr, "points", "", `touch points as "x,y;x,y;x,y;x,y;x,y"`)
	flag.StringVar(&caFile, "ca", "", "path to CA cert for HTTPS servers")
	flag.DurationVar(&timeout, "timeout", client.DefaultTimeout, "request timeout")
	flag.BoolVar(&showVer, "version", false, "show build version and date")
	flag.Parse()

	if showVer {
		fmt.Printf("Smart Stamp Client\nVersion: %s\nBuild Date: %s\n", version, buildDate)
		return
	}
	if apiKey == "" {
		log.Fatal("please provide -key or STAMP_API_KEY")
	}

	points, err := parsePoints(pointsStr)
	if err != nil {
		log.Fatal(err)
	}

	httpClient, err := client.NewHTTPClient(caFile)
	if err != nil {
		log.Fatal(err)
	}
	httpClient.Timeout = timeout
	c := client.New(baseURL, apiKey, httpClient)

	ctx := context.Background()
	res, err := c.Verify(ctx, points)
	if err != nil {
		var apiErr *client.APIError
		if errors.As(err, &apiErr) {
			fmt.Printf("Rejected (%d): %s\n", apiErr.StatusCode, apiErr.Message)
			os.Exit(1)
		}
		log.Fatal(err)
	}
	fmt.Printf("Stamp %s verified (MSE %.6f, max error %.6f)\n", res.StampID, res.MSE, res.MaxError)

	pub, err := c.PublicKey(ctx)
	if err != nil {
		log.Fatal(err)
	}
	claims, err := credential.NewVerifier(pub).Verify(res.JWTToken)
	if err != nil {
		log.Fatalf("token check failed: %v", err)
	}
	b, _ := json.MarshalIndent(claims, "", "  ")
	fmt.Println(string(b))
}
