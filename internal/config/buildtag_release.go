//go:build release

package config

const releaseBuild = true
