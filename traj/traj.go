/*
 * traj.go, part of foldcore.
 *
 * Copyright 2024 Rodrigo Gallego <rgallego{at}protonmaildotcom>
 *
 * This program is free software; you can redistribute it and/or modify
 * it under the terms of the GNU Lesser General Public License as
 * published by the Free Software Foundation; either version 2.1 of the
 * License, or (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU Lesser General
 * Public License along with this program.  If not, see
 * <http://www.gnu.org/licenses/>.
 *
 */

// Package traj records denoising trajectories: the atom coordinates
// after every reverse-diffusion step, as a zstd-compressed text stream.
//
// The format is ASCII throughout. A header of key=value lines ends with
// a line "** natoms". Each frame starts with "# step sigma", followed by
// one line per atom holding the three coordinates in Angstrom times
// 10^prec, rounded to integers, and ends with a line "*".
package traj

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/rgallego/foldcore/v3"
)

const defaultPrec = 3

// Writer streams sampling steps to a compressed trajectory file. It
// implements the sampler's step-recorder contract.
type Writer struct {
	f         *os.File
	h         io.WriteCloser
	natoms    int
	filename  string
	writeable bool
	prec      int
}

// NewWriter creates a trajectory file for natoms-atom frames. Extra
// header entries may be given; the precision is always written.
func NewWriter(name string, natoms int, header map[string]string) (*Writer, error) {
	W := new(Writer)
	var err error
	W.f, err = os.Create(name)
	if err != nil {
		return nil, Error{UnableToOpen + ": " + err.Error(), name, []string{"NewWriter"}, true}
	}
	W.h, err = zstd.NewWriter(W.f, zstd.WithEncoderLevel(zstd.SpeedBestCompression))
	if err != nil {
		W.f.Close()
		return nil, Error{err.Error(), name, []string{"NewWriter"}, true}
	}
	W.natoms = natoms
	W.filename = name
	W.writeable = true
	W.prec = defaultPrec
	if p, ok := header["prec"]; ok {
		prec, err := strconv.Atoi(p)
		if err == nil && prec > 0 {
			W.prec = prec
		}
	}
	W.h.Write([]byte(fmt.Sprintf("prec=%d\n", W.prec)))
	for k, v := range header {
		if k == "prec" {
			continue
		}
		W.h.Write([]byte(fmt.Sprintf("%s=%v\n", k, v)))
	}
	W.h.Write([]byte(fmt.Sprintf("** %d\n", W.natoms)))
	return W, nil
}

// Len returns the number of atoms per frame.
func (W *Writer) Len() int { return W.natoms }

// RecordStep appends one sampling step to the trajectory.
func (W *Writer) RecordStep(step int, sigma float64, coords *v3.Matrix) error {
	if !W.writeable {
		return Error{TrajUnIniWrite, W.filename, []string{"RecordStep"}, true}
	}
	if coords == nil {
		return Error{NilCoordinates, W.filename, []string{"RecordStep"}, true}
	}
	v := coords.NVecs()
	if v != W.natoms {
		return Error{fmt.Sprintf("%d coordinates given, but %d expected", v, W.natoms), W.filename, []string{"RecordStep"}, true}
	}
	W.h.Write([]byte(fmt.Sprintf("# %d %g\n", step, sigma)))
	p := math.Pow(10, float64(W.prec))
	for i := 0; i < v; i++ {
		x := int(math.RoundToEven(coords.At(i, 0) * p))
		y := int(math.RoundToEven(coords.At(i, 1) * p))
		z := int(math.RoundToEven(coords.At(i, 2) * p))
		W.h.Write([]byte(fmt.Sprintf("%d %d %d\n", x, y, z)))
	}
	W.h.Write([]byte("*\n"))
	return nil
}

// Close flushes and closes the file. The writer is unusable afterwards.
func (W *Writer) Close() {
	if W == nil || !W.writeable {
		return
	}
	W.h.Close()
	W.f.Close()
	W.writeable = false
}

// Reader walks a recorded trajectory frame by frame.
type Reader struct {
	f        *os.File
	dec      *zstd.Decoder
	h        *bufio.Reader
	natoms   int
	filename string
	prec     int
	readable bool
}

// NewReader opens a trajectory and consumes its header.
func NewReader(name string) (*Reader, error) {
	R := new(Reader)
	var err error
	R.f, err = os.Open(name)
	if err != nil {
		return nil, Error{UnableToOpen + ": " + err.Error(), name, []string{"NewReader"}, true}
	}
	R.dec, err = zstd.NewReader(R.f)
	if err != nil {
		R.f.Close()
		return nil, Error{err.Error(), name, []string{"NewReader"}, true}
	}
	R.h = bufio.NewReader(R.dec)
	R.filename = name
	R.prec = defaultPrec
	for {
		line, err := R.h.ReadString('\n')
		if err != nil {
			return nil, Error{WrongFormat + ": truncated header", name, []string{"NewReader"}, true}
		}
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "** ") {
			R.natoms, err = strconv.Atoi(strings.TrimSpace(line[3:]))
			if err != nil {
				return nil, Error{WrongFormat + ": bad atom count", name, []string{"NewReader"}, true}
			}
			break
		}
		if k, v, ok := strings.Cut(line, "="); ok && k == "prec" {
			if prec, err := strconv.Atoi(v); err == nil && prec > 0 {
				R.prec = prec
			}
		}
	}
	R.readable = true
	return R, nil
}

// Len returns the number of atoms per frame.
func (R *Reader) Len() int { return R.natoms }

// Next reads one frame into coords, which must hold Len rows, and
// returns the recorded step index and noise level. At the end of the
// trajectory it returns an error for which IsLastFrame is true.
func (R *Reader) Next(coords *v3.Matrix) (step int, sigma float64, err error) {
	if !R.readable {
		return 0, 0, Error{TrajUnIniRead, R.filename, []string{"Next"}, true}
	}
	head, err := R.h.ReadString('\n')
	if err == io.EOF {
		return 0, 0, newLastFrameError(R.filename, "Next")
	}
	if err != nil {
		return 0, 0, Error{ReadError + ": " + err.Error(), R.filename, []string{"Next"}, true}
	}
	fields := strings.Fields(head)
	if len(fields) != 3 || fields[0] != "#" {
		return 0, 0, Error{WrongFormat + ": bad frame header", R.filename, []string{"Next"}, true}
	}
	step, err = strconv.Atoi(fields[1])
	if err != nil {
		return 0, 0, Error{WrongFormat + ": bad step index", R.filename, []string{"Next"}, true}
	}
	sigma, err = strconv.ParseFloat(fields[2], 64)
	if err != nil {
		return 0, 0, Error{WrongFormat + ": bad noise level", R.filename, []string{"Next"}, true}
	}
	if coords == nil {
		return 0, 0, Error{NilCoordinates, R.filename, []string{"Next"}, true}
	}
	if coords.NVecs() != R.natoms {
		return 0, 0, Error{NotEnoughSpace, R.filename, []string{"Next"}, true}
	}
	p := math.Pow(10, float64(R.prec))
	for i := 0; i < R.natoms; i++ {
		line, err := R.h.ReadString('\n')
		if err != nil {
			return 0, 0, Error{ReadError + ": " + err.Error(), R.filename, []string{"Next"}, true}
		}
		xyz := strings.Fields(line)
		if len(xyz) != 3 {
			return 0, 0, Error{WrongFormat + ": bad coordinate line", R.filename, []string{"Next"}, true}
		}
		for k := 0; k < 3; k++ {
			iv, err := strconv.Atoi(xyz[k])
			if err != nil {
				return 0, 0, Error{WrongFormat + ": bad coordinate", R.filename, []string{"Next"}, true}
			}
			coords.Set(i, k, float64(iv)/p)
		}
	}
	term, err := R.h.ReadString('\n')
	if err != nil || !strings.HasPrefix(term, "*") {
		return 0, 0, Error{WrongFormat + ": missing frame terminator", R.filename, []string{"Next"}, true}
	}
	return step, sigma, nil
}

// Close releases the decoder and the file.
func (R *Reader) Close() {
	if !R.readable {
		return
	}
	R.dec.Close()
	R.f.Close()
	R.readable = false
}

// Error is the general structure for trajectory errors.
type Error struct {
	message  string
	filename string
	deco     []string
	critical bool
}

func (err Error) Error() string {
	return fmt.Sprintf("traj file %s error: %s", err.filename, err.message)
}

// Decorate adds new information to the error.
func (err Error) Decorate(deco string) []string {
	if deco != "" {
		err.deco = append(err.deco, deco)
	}
	return err.deco
}

// FileName returns the file associated to the error.
func (err Error) FileName() string { return err.filename }

// Critical returns true if the error is critical, false otherwise.
func (err Error) Critical() bool { return err.critical }

// Messages reused across the package.
const (
	TrajUnIniRead  = "Traj object uninitialized to read"
	TrajUnIniWrite = "Traj object uninitialized to write"
	ReadError      = "Error reading frame"
	UnableToOpen   = "Unable to open file"
	NilCoordinates = "Given nil coordinates"
	WrongFormat    = "Wrong format in the trajectory file or frame"
	NotEnoughSpace = "Not enough space in passed blocks"
)

// lastFrameError signals normal trajectory termination.
type lastFrameError struct {
	deco     []string
	fileName string
}

func (err lastFrameError) NormalLastFrameTermination() {}

func (err lastFrameError) FileName() string { return err.fileName }

func (err lastFrameError) Error() string { return "EOF" }

func (err lastFrameError) Critical() bool { return false }

func (err lastFrameError) Decorate(deco string) []string {
	if deco != "" {
		err.deco = append(err.deco, deco)
	}
	return err.deco
}

func newLastFrameError(filename, caller string) lastFrameError {
	return lastFrameError{fileName: filename, deco: []string{caller}}
}

// IsLastFrame reports whether err marks the normal end of a trajectory.
func IsLastFrame(err error) bool {
	_, ok := err.(interface{ NormalLastFrameTermination() })
	return ok
}
