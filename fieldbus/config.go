package fieldbus

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Config is the Modbus/TCP master's connection and mapping-width settings,
// persisted as plain key=value lines in modbus_config.txt. Grounded on the
// original ModbusManager's hardcoded field defaults, generalized so the
// discrete/analog widths that original left dead in its header are
// actually exercised by sync.
type Config struct {
	IP      string
	Port    int
	SlaveID int

	NumInputs        int
	NumOutputs       int
	NumAnalogInputs  int
	NumAnalogOutputs int
}

// DefaultConfig returns the settings used when no config file is present.
func DefaultConfig() Config {
	return Config{
		IP:               "127.0.0.1",
		Port:             502,
		SlaveID:          1,
		NumInputs:        8,
		NumOutputs:       8,
		NumAnalogInputs:  0,
		NumAnalogOutputs: 0,
	}
}

const (
	minDiscreteCount = 1
	maxDiscreteCount = 512
	minAnalogCount   = 0
	maxAnalogCount   = 128
)

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Clamp forces every count field into its legal range in place.
func (c *Config) Clamp() {
	c.NumInputs = clamp(c.NumInputs, minDiscreteCount, maxDiscreteCount)
	c.NumOutputs = clamp(c.NumOutputs, minDiscreteCount, maxDiscreteCount)
	c.NumAnalogInputs = clamp(c.NumAnalogInputs, minAnalogCount, maxAnalogCount)
	c.NumAnalogOutputs = clamp(c.NumAnalogOutputs, minAnalogCount, maxAnalogCount)
}

// LoadConfig reads path, falling back to DefaultConfig if it does not
// exist. The four count keys are clamped into their legal ranges on load,
// so an operator-edited file with an out-of-range count never reaches the
// bridge; ip, port and slave_id are taken as written.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, errors.Wrapf(err, "opening %q", path)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		switch key {
		case "ip":
			cfg.IP = value
		case "port":
			if n, err := strconv.Atoi(value); err == nil {
				cfg.Port = n
			}
		case "slave_id":
			if n, err := strconv.Atoi(value); err == nil {
				cfg.SlaveID = n
			}
		case "num_inputs":
			if n, err := strconv.Atoi(value); err == nil {
				cfg.NumInputs = n
			}
		case "num_outputs":
			if n, err := strconv.Atoi(value); err == nil {
				cfg.NumOutputs = n
			}
		case "num_analog_inputs":
			if n, err := strconv.Atoi(value); err == nil {
				cfg.NumAnalogInputs = n
			}
		case "num_analog_outputs":
			if n, err := strconv.Atoi(value); err == nil {
				cfg.NumAnalogOutputs = n
			}
		}
	}
	if err := sc.Err(); err != nil {
		return cfg, errors.Wrapf(err, "reading %q", path)
	}

	cfg.Clamp()
	return cfg, nil
}

// Save writes cfg to path as key=value lines, overwriting any existing
// file.
func (c Config) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "creating %q", path)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	fmt.Fprintf(w, "ip=%s\n", c.IP)
	fmt.Fprintf(w, "port=%d\n", c.Port)
	fmt.Fprintf(w, "slave_id=%d\n", c.SlaveID)
	fmt.Fprintf(w, "num_inputs=%d\n", c.NumInputs)
	fmt.Fprintf(w, "num_outputs=%d\n", c.NumOutputs)
	fmt.Fprintf(w, "num_analog_inputs=%d\n", c.NumAnalogInputs)
	fmt.Fprintf(w, "num_analog_outputs=%d\n", c.NumAnalogOutputs)
	return errors.Wrap(w.Flush(), "flushing config")
}
