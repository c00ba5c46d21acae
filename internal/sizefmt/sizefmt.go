// Package sizefmt converts byte counts to and from human-readable strings.
package sizefmt

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var suffixes = [...]string{"bytes", "KB", "MB", "GB", "TB", "PB", "EB", "ZB", "YB"}

// Format renders a byte count with the given number of decimal places,
// dividing by 1024 until the mantissa rounds below 1000. Negative values
// mirror the positive formatting with a leading minus.
//
//	Format(0, 1)       == "0.0 bytes"
//	Format(1024, 1)    == "1.0 KB"
//	Format(1<<20, 1)   == "1.0 MB"
func Format(value int64, decimals int) string {
	if value < 0 {
		return "-" + Format(-value, decimals)
	}
	pow := math.Pow(10, float64(decimals))
	v := float64(value)
	i := 0
	for math.Round(v*pow)/pow >= 1000 && i < len(suffixes)-1 {
		v /= 1024
		i++
	}
	return fmt.Sprintf("%.*f %s", decimals, v, suffixes[i])
}

// ByteSize is a size in bytes that unmarshals from human-readable config
// strings like "10Gi", "100MB", or plain numbers.
type ByteSize int64

func (b ByteSize) String() string {
	return Format(int64(b), 1)
}

var sizePattern = regexp.MustCompile(`(?i)^\s*(\d+(?:\.\d+)?)\s*([a-z]*)\s*$`)

var unitMultipliers = map[string]int64{
	"":    1,
	"b":   1,
	"k":   1000,
	"kb":  1000,
	"m":   1000 * 1000,
	"mb":  1000 * 1000,
	"g":   1000 * 1000 * 1000,
	"gb":  1000 * 1000 * 1000,
	"t":   1000 * 1000 * 1000 * 1000,
	"tb":  1000 * 1000 * 1000 * 1000,
	"ki":  1 << 10,
	"kib": 1 << 10,
	"mi":  1 << 20,
	"mib": 1 << 20,
	"gi":  1 << 30,
	"gib": 1 << 30,
	"ti":  1 << 40,
	"tib": 1 << 40,
}

// Parse converts a human-readable size string into a ByteSize. It accepts
// binary units (Ki/Mi/Gi/Ti, x1024), decimal units (K/M/G/T, x1000), and
// plain integers.
func Parse(s string) (ByteSize, error) {
	if strings.TrimSpace(s) == "" {
		return 0, fmt.Errorf("empty size string")
	}
	m := sizePattern.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("invalid size format: %q", s)
	}
	mult, ok := unitMultipliers[strings.ToLower(m[2])]
	if !ok {
		return 0, fmt.Errorf("unknown size unit: %q", m[2])
	}
	if strings.Contains(m[1], ".") {
		f, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return 0, fmt.Errorf("invalid size number: %q", m[1])
		}
		return ByteSize(f * float64(mult)), nil
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size number: %q", m[1])
	}
	return ByteSize(n * mult), nil
}
