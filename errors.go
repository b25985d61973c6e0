/*
 * errors.go, part of foldcore.
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

package fold

import "fmt"

// Error is the interface for errors that all packages in this library
// implement. The Decorate method allows adding and retrieving info from
// the error, without changing its type or wrapping it around something
// else. The decoration slice contains a list of functions in the calling
// stack, plus, for each function, any relevant information, or nothing.
// If passed an empty string, Decorate just returns the current value.
type Error interface {
	Error() string
	Decorate(string) []string
}

// ConfigError reports inconsistent construction or call arguments:
// mismatched dimensions between dependent sub-modules, a zero number of
// sampling steps, and the like. It is raised before any expensive
// computation starts.
type ConfigError struct {
	message string
	deco    []string
}

func (err *ConfigError) Error() string {
	return fmt.Sprintf("fold: configuration error: %s", err.message)
}

// Decorate adds new information to the error.
func (err *ConfigError) Decorate(deco string) []string {
	if deco != "" {
		err.deco = append(err.deco, deco)
	}
	return err.deco
}

// ShapeError reports a violated shape invariant on input tensors, such as
// an atom-to-token run-length that does not sum to the declared atom
// count, or an interface-chain list naming an unknown chain.
type ShapeError struct {
	message string
	deco    []string
}

func (err *ShapeError) Error() string {
	return fmt.Sprintf("fold: shape error: %s", err.message)
}

// Decorate adds new information to the error.
func (err *ShapeError) Decorate(deco string) []string {
	if deco != "" {
		err.deco = append(err.deco, deco)
	}
	return err.deco
}

// ConfigErrorf builds a ConfigError from a format string.
func ConfigErrorf(format string, a ...interface{}) *ConfigError {
	return &ConfigError{message: fmt.Sprintf(format, a...)}
}

// ShapeErrorf builds a ShapeError from a format string.
func ShapeErrorf(format string, a ...interface{}) *ShapeError {
	return &ShapeError{message: fmt.Sprintf(format, a...)}
}

func configErrorf(format string, a ...interface{}) *ConfigError {
	return ConfigErrorf(format, a...)
}

func shapeErrorf(format string, a ...interface{}) *ShapeError {
	return ShapeErrorf(format, a...)
}

// errDecorate asserts that err implements Error and decorates it with the
// caller's name before returning it. Used when passing errors up.
func errDecorate(err error, caller string) error {
	err2, ok := err.(Error)
	if !ok {
		return fmt.Errorf("%s: %w", caller, err)
	}
	err2.Decorate(caller)
	return err2
}

// Messages reused across the package.
const (
	ZeroSampleSteps = "at least one sampling step is required"
	NilCoordinates  = "given nil coordinates"
)
