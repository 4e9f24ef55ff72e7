// Package j2kparse reads the structure of JPEG 2000 Part-1 codestreams.
//
// A Reader parses the main header and every tile-part header of a raw
// codestream, decides how many bytes of it may be used for a requested
// rate, and on demand parses the packets of one tile to locate the
// compressed data of each code-block. Entropy decoding, dequantization and
// the inverse wavelet transform are left to the caller, which retrieves
// code-block data with Reader.CodeBlock.
//
// Basic usage:
//
//	r, err := j2kparse.OpenFile("image.j2k", j2kparse.DefaultConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer r.Close()
//	for {
//	    for c := 0; c < r.NumComps(); c++ {
//	        for _, sb := range r.Subbands(c) {
//	            // r.CodeBlock(c, m, n, sb, 0, -1, nil) for every code-block of sb
//	        }
//	    }
//	    if err := r.NextTile(); err != nil {
//	        break
//	    }
//	}
//
// Two rate modes exist. In truncation mode the codestream is read up to
// the byte budget and cut there. In parsing mode every packet is read and
// a layer-progressive truncation at the requested rate is simulated.
package j2kparse

import (
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/mrjoshuak/go-j2kparse/internal/codestream"
	"github.com/mrjoshuak/go-j2kparse/internal/imgdata"
)

// Errors returned by the reader. Every error it returns wraps one of them.
var (
	// ErrCorrupted reports a codestream that violates the syntax.
	ErrCorrupted = codestream.ErrCorrupted

	// ErrUnsupported reports a valid feature this package does not implement.
	ErrUnsupported = codestream.ErrUnsupported

	// ErrTruncated reports a codestream that ends early. Readers survive
	// it: the data up to the end is used and a warning is logged.
	ErrTruncated = codestream.ErrTruncated

	// ErrInvalidParam reports an invalid argument or configuration.
	ErrInvalidParam = codestream.ErrInvalidParam

	// ErrNoMoreTiles is returned by NextTile on the last tile.
	ErrNoMoreTiles = imgdata.ErrNoMoreTiles
)

// Config holds the reading configuration.
type Config struct {
	// Rate is the target rate in bits per pixel of the image area, or -1
	// for no limit.
	Rate float64

	// NBytes is the target number of bytes, or -1 for no limit. Only one
	// of Rate and NBytes may be set.
	NBytes int

	// Parsing selects parsing mode: every packet is read and the
	// truncation at the target rate is simulated. Otherwise the
	// codestream is truncated.
	Parsing bool

	// Res is the resolution level to reconstruct, or -1 for the highest
	// one available in every tile-component.
	Res int

	// CodestreamInfo logs the structure of the codestream (main header,
	// tile-parts and packets) at info level and keeps it for Info.
	CodestreamInfo bool

	// ErrorResilience and VerboseErrors are handed to the entropy decoder:
	// detect errors with the segmentation symbols and report them.
	ErrorResilience bool
	VerboseErrors   bool

	// Logger receives warnings and diagnostics. Nil means the standard
	// logrus logger.
	Logger logrus.FieldLogger
}

// DefaultConfig returns the default configuration: no rate limit, parsing
// mode, highest resolution.
func DefaultConfig() Config {
	return Config{
		Rate:    -1,
		NBytes:  -1,
		Parsing: true,
		Res:     -1,
	}
}

// Param names accepted by ConfigFromParams.
const (
	ParamRate           = "rate"
	ParamNBytes         = "nbytes"
	ParamParsing        = "parsing"
	ParamRes            = "res"
	ParamCodestreamInfo = "cdstr_info"
	ParamErrorRes       = "Cer"
	ParamVerboseErrors  = "Cverber"
)

// ConfigFromParams builds a Config from named string parameters, starting
// from DefaultConfig. Booleans accept on/off as well as the strconv forms.
func ConfigFromParams(params map[string]string) (Config, error) {
	cfg := DefaultConfig()
	for name, v := range params {
		var err error
		switch name {
		case ParamRate:
			cfg.Rate, err = strconv.ParseFloat(strings.TrimSpace(v), 64)
		case ParamNBytes:
			cfg.NBytes, err = strconv.Atoi(strings.TrimSpace(v))
		case ParamParsing:
			cfg.Parsing, err = parseBool(v)
		case ParamRes:
			cfg.Res, err = strconv.Atoi(strings.TrimSpace(v))
		case ParamCodestreamInfo:
			cfg.CodestreamInfo, err = parseBool(v)
		case ParamErrorRes:
			cfg.ErrorResilience, err = parseBool(v)
		case ParamVerboseErrors:
			cfg.VerboseErrors, err = parseBool(v)
		default:
			return Config{}, codestream.InvalidParamf("unknown parameter %q", name)
		}
		if err != nil {
			return Config{}, codestream.InvalidParamf("parameter %s=%q: %v", name, v, err)
		}
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func parseBool(v string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "on":
		return true, nil
	case "off":
		return false, nil
	}
	return strconv.ParseBool(strings.TrimSpace(v))
}

func (cfg *Config) validate() error {
	switch {
	case cfg.Rate < 0 && cfg.Rate != -1:
		return codestream.InvalidParamf("rate %g", cfg.Rate)
	case cfg.NBytes < -1:
		return codestream.InvalidParamf("nbytes %d", cfg.NBytes)
	case cfg.Rate != -1 && cfg.NBytes != -1:
		return codestream.InvalidParamf("rate and nbytes are both set")
	case cfg.Res < -1:
		return codestream.InvalidParamf("res %d", cfg.Res)
	}
	return nil
}

func (cfg *Config) logger() logrus.FieldLogger {
	if cfg.Logger == nil {
		return logrus.StandardLogger()
	}
	return cfg.Logger
}
