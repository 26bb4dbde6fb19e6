//go:build linux

package netio

import (
	"github.com/vishvananda/netlink"
)

func carrier(ifname string) (bool, error) {
	link, err := netlink.LinkByName(ifname)
	if err != nil {
		return false, err
	}
	return linkIsUp(link.Attrs()), nil
}

// watchLinks subscribes to RTNLGRP_LINK. The returned channel is closed
// when done is closed or the subscription fails.
func watchLinks(done <-chan struct{}) (<-chan linkEvent, error) {
	updates := make(chan netlink.LinkUpdate, 64)
	if err := netlink.LinkSubscribe(updates, done); err != nil {
		return nil, err
	}
	events := make(chan linkEvent)
	go func() {
		defer close(events)
		for u := range updates {
			attrs := u.Link.Attrs()
			select {
			case events <- linkEvent{ifname: attrs.Name, up: linkIsUp(attrs)}:
			case <-done:
				for range updates {
				}
				return
			}
		}
	}()
	return events, nil
}
