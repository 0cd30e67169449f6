//go:build !nogstreamer

package main

import _ "github.com/charlie0129/formcoach/pkg/camera/gstreamer" // registers the gstreamer camera backend
