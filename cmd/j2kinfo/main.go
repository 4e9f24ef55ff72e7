// Command j2kinfo prints the structure of a JPEG 2000 codestream: image
// and tiling geometry, the rate budget, and for every tile the number of
// code-blocks holding data and their compressed size.
//
// Usage:
//
//	j2kinfo [-rate r | -nbytes n] [-parsing=false] [-res r] [-cdstr_info] [-v] file
//
// Files compressed with zstd (.zst or the zstd magic number) are
// decompressed before parsing.
package main

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/sirupsen/logrus"

	"github.com/mrjoshuak/go-j2kparse"
)

var zstdMagic = []byte{0x28, 0xB5, 0x2F, 0xFD}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("j2kinfo", flag.ContinueOnError)
	fs.SetOutput(stderr)
	def := j2kparse.DefaultConfig()
	rate := fs.Float64("rate", def.Rate, "target rate in bits per pixel, -1 for no limit")
	nbytes := fs.Int("nbytes", def.NBytes, "target number of bytes, -1 for no limit")
	parsing := fs.Bool("parsing", def.Parsing, "simulate truncation instead of truncating the codestream")
	res := fs.Int("res", def.Res, "resolution level to reconstruct, -1 for the highest")
	info := fs.Bool("cdstr_info", false, "print the codestream structure")
	verbose := fs.Bool("v", false, "log debug messages")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: j2kinfo [flags] file")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return 2
	}

	log := logrus.New()
	log.SetOutput(stderr)
	log.SetLevel(logrus.WarnLevel)
	if *verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	cfg := def
	cfg.Rate, cfg.NBytes, cfg.Parsing, cfg.Res = *rate, *nbytes, *parsing, *res
	cfg.CodestreamInfo = *info
	cfg.Logger = log

	name := fs.Arg(0)
	src, err := openInput(name)
	if err != nil {
		log.WithError(err).Error("cannot read input")
		return 1
	}
	r, err := j2kparse.Open(src, cfg)
	if err != nil {
		log.WithError(err).WithField("file", name).Error("cannot parse codestream")
		return 1
	}
	defer r.Close()

	if err := report(stdout, name, r, *info); err != nil {
		log.WithError(err).WithField("file", name).Error("cannot read tile")
		return 1
	}
	return 0
}

// openInput opens name, decompressing it into memory when it is zstd
// compressed.
func openInput(name string) (io.ReadSeeker, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	var magic [4]byte
	n, _ := io.ReadFull(f, magic[:])
	if !strings.HasSuffix(name, ".zst") && !bytes.Equal(magic[:n], zstdMagic) {
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			f.Close()
			return nil, err
		}
		return f, nil
	}
	defer f.Close()
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	data, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("decompressing %s: %w", name, err)
	}
	return bytes.NewReader(data), nil
}

// report prints the summary, then walks every tile.
func report(w io.Writer, name string, r *j2kparse.Reader, info bool) error {
	siz := r.SIZ()
	fmt.Fprintf(w, "%s: %dx%d at (%d,%d), %d components\n",
		name, r.ImgWidth(), r.ImgHeight(), r.ImgULX(), r.ImgULY(), r.NumComps())
	for c := 0; c < r.NumComps(); c++ {
		fmt.Fprintf(w, "  component %d: %d bits, subsampling %dx%d\n",
			c, r.NomRangeBits(c), r.CompSubsX(c), r.CompSubsY(c))
	}
	nt := r.NumTiles()
	fmt.Fprintf(w, "tiles: %dx%d of %dx%d at (%d,%d)\n",
		nt.X, nt.Y, r.NomTileWidth(), r.NomTileHeight(), siz.XTOsiz, siz.YTOsiz)
	for _, c := range r.Comments() {
		if c.Text != "" {
			fmt.Fprintf(w, "comment: %s\n", c.Text)
		}
	}

	for {
		blocks, size, err := tileStats(r)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "tile %d %v: %dx%d, %d tile-parts, %d code-blocks, %d bytes\n",
			r.TileIdx(), r.Tile(), r.TileWidth(), r.TileHeight(), r.NumTileParts(r.TileIdx()), blocks, size)
		err = r.NextTile()
		if errors.Is(err, j2kparse.ErrNoMoreTiles) {
			break
		}
		if err != nil {
			return err
		}
	}

	target, used := r.Budget()
	fmt.Fprintf(w, "budget: %d bytes, %d used", target, used)
	if r.RateReached() {
		fmt.Fprint(w, ", rate reached")
	}
	if r.Truncated() {
		fmt.Fprint(w, ", truncated")
	}
	fmt.Fprintln(w)
	if info {
		fmt.Fprint(w, r.Info())
	}
	return nil
}

// tileStats counts the code-blocks of the current tile that carry coding
// passes and the bytes they hold.
func tileStats(r *j2kparse.Reader) (blocks int, size int64, err error) {
	var cb *j2kparse.DecLyrdCBlk
	for c := 0; c < r.NumComps(); c++ {
		for _, sb := range r.Subbands(c) {
			for m := 0; m < sb.CodeBlocksY; m++ {
				for n := 0; n < sb.CodeBlocksX; n++ {
					if cb, err = r.CodeBlock(c, m, n, sb, 0, -1, cb); err != nil {
						return 0, 0, err
					}
					if cb.NumPasses > 0 {
						blocks++
						size += int64(len(cb.Data))
					}
				}
			}
		}
	}
	return blocks, size, nil
}
