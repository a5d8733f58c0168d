// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package mission

import (
	"math/rand"
	"os"
	"strconv"
	"testing"
	"time"
)

// getFuzzRounds returns the number of fuzz rounds from FUZZ_ROUNDS env var, default 1000
func getFuzzRounds() int {
	if envRounds := os.Getenv("FUZZ_ROUNDS"); envRounds != "" {
		if rounds, err := strconv.Atoi(envRounds); err == nil && rounds > 0 {
			return rounds
		}
	}
	return 1000
}

// getFuzzSeed returns the seed from FUZZ_SEED env var, or generates one from current time
func getFuzzSeed() int64 {
	if envSeed := os.Getenv("FUZZ_SEED"); envSeed != "" {
		if seed, err := strconv.ParseInt(envSeed, 10, 64); err == nil {
			return seed
		}
	}
	return time.Now().UnixNano()
}

// newFuzzRng creates a new random number generator and logs the seed for reproducibility
func newFuzzRng(t *testing.T) *rand.Rand {
	seed := getFuzzSeed()
	t.Logf("Seed: %d (reproduce with FUZZ_SEED=%d)", seed, seed)
	return rand.New(rand.NewSource(seed))
}

// randomFrame builds a frame that starts with a plausible tag more often than not
func randomFrame(rng *rand.Rand, maxTag int) []byte {
	n := rng.Intn(64)
	frame := make([]byte, n+1)
	rng.Read(frame)
	if rng.Intn(4) != 0 {
		frame[0] = byte(rng.Intn(maxTag))
	}
	return frame
}

func TestFuzzParserNeverPanics(t *testing.T) {
	rng := newFuzzRng(t)
	rounds := getFuzzRounds()

	for _, d := range []*Dialect{DirectDialect, GatewayDialect} {
		p := NewParser(d, Generation(rng.Intn(3)))
		for i := 0; i < rounds; i++ {
			if rng.Intn(8) == 0 {
				p.BeginFileReceive()
			}
			func() {
				defer func() {
					if r := recover(); r != nil {
						t.Fatalf("%s dialect panicked on round %d: %v", d.Name(), i, r)
					}
				}()
				_, _ = p.Parse(randomFrame(rng, 20))
			}()
		}
	}
}

func TestFuzzGatewayFrameNeverPanics(t *testing.T) {
	rng := newFuzzRng(t)
	rounds := getFuzzRounds()

	for i := 0; i < rounds; i++ {
		frame := randomFrame(rng, 3)
		func() {
			defer func() {
				if r := recover(); r != nil {
					t.Fatalf("round %d panicked: %v (frame % X)", i, r, frame)
				}
			}()
			records, _ := ParseGatewayFrame(frame)
			for _, rec := range records {
				if rec.Type == GatewayDeviceMessage && len(rec.Payload) > MaxDeviceFrameLength {
					t.Errorf("round %d: payload of %d bytes", i, len(rec.Payload))
				}
			}
		}()
	}
}

func TestFuzzSensorConfigurationRoundTrip(t *testing.T) {
	rng := newFuzzRng(t)
	rounds := getFuzzRounds()

	for i := 0; i < rounds; i++ {
		c := SensorDataConfigurations{
			Motion:   map[MotionDataType]int{},
			Pressure: map[PressureDataType]int{},
		}
		for _, mt := range MotionDataTypes {
			if rng.Intn(2) == 0 {
				c.Motion[mt] = rng.Intn(2000) - 100
			}
		}

		body := EncodeSensorDataConfigurations(c, false)
		if len(body) == 0 {
			continue
		}
		if body[0] != byte(SensorMotion) || int(body[1]) != len(body)-2 || body[1]%3 != 0 {
			t.Fatalf("round %d: malformed block % X", i, body)
		}
		for off := 2; off < len(body); off += 3 {
			delay := int(body[off+1]) | int(body[off+2])<<8
			if delay%SensorDataDelayStep != 0 {
				t.Errorf("round %d: delay %d not a multiple of %d", i, delay, SensorDataDelayStep)
			}
		}
	}
}
