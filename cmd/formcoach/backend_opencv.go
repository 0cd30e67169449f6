//go:build !noopencv

package main

import _ "github.com/charlie0129/formcoach/pkg/camera/opencv" // registers the opencv camera backend
