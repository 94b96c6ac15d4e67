//go:build !linux

package sysstat

import "errors"

var errUnsupported = errors.New("system status sampling is only supported on linux")

type unsupportedCollector struct{}

func NewCollector(string) Collector { return unsupportedCollector{} }

func (unsupportedCollector) Read() (Reading, error) { return Reading{}, errUnsupported }
