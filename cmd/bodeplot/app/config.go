package app

import (
	"errors"
	"flag"
	"fmt"
)

type Config struct {
	DBPath        string
	SessionID     int64
	OutputFile    string
	FontPath      string
	Width         int
	Height        int
	NoAnnotations bool
}

func NewConfig() *Config {
	return &Config{
		Width:  1200,
		Height: 800,
	}
}

func NewConfigFromCLI() (*Config, error) {
	c := NewConfig()

	flag.StringVar(&c.DBPath, "db", "", "Path to the database file")
	flag.Int64Var(&c.SessionID, "s", 1, "Session ID")
	flag.StringVar(&c.OutputFile, "o", "", "Path to the output PNG file")
	flag.StringVar(&c.FontPath, "font", "", "Path to a TTF font for axis labels")
	flag.IntVar(&c.Width, "w", c.Width, "Image width in pixels")
	flag.IntVar(&c.Height, "h", c.Height, "Image height in pixels")
	flag.BoolVar(&c.NoAnnotations, "no-annotations", false, "Disable axis scales and labels")
	flag.Parse()

	var err error
	switch {
	case c.DBPath == "":
		err = errors.New("db path is required")
	case c.SessionID <= 0:
		err = errors.New("session id is required")
	case c.OutputFile == "":
		err = errors.New("output file is required")
	case !c.NoAnnotations && c.FontPath == "":
		err = errors.New("font path is required unless annotations are disabled")
	case c.Width < 400 || c.Height < 300:
		err = fmt.Errorf("image size %dx%d is too small", c.Width, c.Height)
	}

	if err != nil {
		flag.Usage()
		return nil, err
	}

	return c, nil
}
