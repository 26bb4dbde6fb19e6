//go:build !linux

package netio

import (
	"errors"
	"runtime"
)

var errNoNetlink = errors.New("netlink link state is not available on " + runtime.GOOS)

func carrier(string) (bool, error) { return false, errNoNetlink }

func watchLinks(<-chan struct{}) (<-chan linkEvent, error) { return nil, errNoNetlink }
