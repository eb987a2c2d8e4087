package config

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"

	"github.com/pkg/errors"
	"gopkg.in/gcfg.v1"
)

const DefaultPath = "./config/config.ini"

type (
	Config struct {
		SERVICE struct {
			PORT         int
			BusinessID   string
			TerminalName string
		}
		DBSQLITE struct {
			DB string
		}
		REDIS struct {
			Addr     string
			Password string
			DB       int
		}
		TELEGRAM struct {
			BotToken string
			ChatID   int64
			Debug    int
		}
		LOG struct {
			Debug int
		}
		CACHE struct {
			TimeUpdate int
		}
		PAYMENT struct {
			AutoClose      bool
			Tolerance      string
			CloseThreshold string
		}
		LEDGER struct {
			SkewWindowHours int
			SkewToleranceMs int
		}
		SPLIT struct {
			Retries int
		}
		ACTIONS struct {
			RequireReason bool
		}
	}
)

var cfg Config
var once sync.Once

// GetConfig reads ./config/config.ini once and returns the shared configuration.
func GetConfig() *Config {
	once.Do(func() {
		err := os.MkdirAll("logs", 0770)
		if err != nil {
			fmt.Println(err)
		}

		var writers = []io.Writer{os.Stdout}
		file, err := os.OpenFile("logs/config.log", os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0640)
		if err != nil {
			fmt.Println(err)
		} else {
			writers = append(writers, file)
		}

		logger := log.New(io.MultiWriter(writers...), "MAIN ", log.Ldate|log.Ltime|log.Lshortfile)

		logger.Print("Config:>Read application configurations")

		c, err := ReadConfig(DefaultPath)
		if err != nil {
			logger.Fatalf("Config:>Failed to parse gcfg data: %s", err)
		} else {
			logger.Print("Config:>Config is read")
		}
		cfg = *c
	})

	return &cfg
}

// ReadConfig parses an ini file on top of the defaults.
func ReadConfig(path string) (*Config, error) {
	c := Default()
	if err := gcfg.ReadFileInto(c, path); err != nil {
		return nil, errors.Wrapf(err, "failed gcfg.ReadFileInto(%s)", path)
	}
	return c, nil
}

// ReadString parses ini text on top of the defaults.
func ReadString(text string) (*Config, error) {
	c := Default()
	if err := gcfg.ReadStringInto(c, text); err != nil {
		return nil, errors.Wrap(err, "failed gcfg.ReadStringInto")
	}
	return c, nil
}

func Default() *Config {
	c := new(Config)
	c.SERVICE.PORT = 8085
	c.SERVICE.BusinessID = "default"
	c.SERVICE.TerminalName = "POS-1"
	c.DBSQLITE.DB = "tableside.db"
	c.REDIS.Addr = "localhost:6379"
	c.CACHE.TimeUpdate = 60
	c.PAYMENT.AutoClose = true
	c.PAYMENT.Tolerance = "0.01"
	c.PAYMENT.CloseThreshold = "0.05"
	c.LEDGER.SkewWindowHours = 24
	c.LEDGER.SkewToleranceMs = 1000
	c.SPLIT.Retries = 3
	c.ACTIONS.RequireReason = true
	return c
}
