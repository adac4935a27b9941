// Package fingerprint synthesizes coherent, randomized desktop browser
// profiles and the request headers derived from them.
//
// Profiles are pure values: Synthesize has no state and never fails, so a
// caller can throw a profile away and draw a new one on every attempt.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/rand/v2"
	"time"
)

// Profile is a simulated desktop browser environment.
//
// Invariants: ViewportWidth <= ScreenWidth, ViewportHeight <= ScreenHeight,
// ColorDepth is one of 24, 30, 48 and PixelDepth equals ColorDepth.
type Profile struct {
	ScreenWidth    int `json:"screen_width"`
	ScreenHeight   int `json:"screen_height"`
	ViewportWidth  int `json:"viewport_width"`
	ViewportHeight int `json:"viewport_height"`
	ColorDepth     int `json:"color_depth"`
	PixelDepth     int `json:"pixel_depth"`

	DeviceMemory        int `json:"device_memory"`
	HardwareConcurrency int `json:"hardware_concurrency"`

	Platform        string `json:"platform"`
	PlatformDetails string `json:"platform_details"`

	WebGLVendor   string `json:"webgl_vendor"`
	WebGLRenderer string `json:"webgl_renderer"`
	CanvasHash    string `json:"canvas_hash"`
	AudioHash     string `json:"audio_hash"`

	AcceptLanguage string `json:"accept_language"`
	Timezone       string `json:"timezone"`
	DoNotTrack     bool   `json:"do_not_track"`
	MaxTouchPoints int    `json:"max_touch_points"`

	// UserAgent is bound by the caller so it matches the TLS profile in use.
	UserAgent string `json:"user_agent,omitempty"`
}

// Synthesize draws a fresh random profile.
func Synthesize() Profile {
	res := pick(resolutions)
	plat := pick(platforms)
	depth := pick(colorDepths)
	cores := pick(hardwareConcurrencies)
	memory := pick(deviceMemories)
	renderer := pick(webGLRenderers)

	// Browser chrome: scrollbar on the side, tabs and address bar on top.
	uiWidth := 20 + rand.IntN(31)
	uiHeight := 60 + rand.IntN(61)

	now := time.Now().UnixNano()

	return Profile{
		ScreenWidth:         res.w,
		ScreenHeight:        res.h,
		ViewportWidth:       res.w - uiWidth,
		ViewportHeight:      res.h - uiHeight,
		ColorDepth:          depth,
		PixelDepth:          depth,
		DeviceMemory:        memory,
		HardwareConcurrency: cores,
		Platform:            plat.name,
		PlatformDetails:     plat.details,
		WebGLVendor:         pick(webGLVendors),
		WebGLRenderer:       renderer,
		CanvasHash:          sha256Hex(fmt.Sprintf("%v_%d_%d_%s", rand.Float64(), now, res.w, renderer)),
		AudioHash:           sha256Hex(fmt.Sprintf("%v_%d_%d_%d", rand.Float64(), now, cores, memory)),
		AcceptLanguage:      pick(acceptLanguages),
		Timezone:            pick(timezones),
		DoNotTrack:          rand.IntN(2) == 1,
		MaxTouchPoints:      pick(touchPoints),
	}
}

// WithUserAgent returns a copy of p bound to ua.
func (p Profile) WithUserAgent(ua string) Profile {
	p.UserAgent = ua
	return p
}

// Hash is the composite fingerprint sent as X-Browser-Fingerprint.
func (p Profile) Hash() string {
	return sha256Hex(fmt.Sprintf("%dx%d;Lang:%s;Canvas:%s;Audio:%s",
		p.ScreenWidth, p.ScreenHeight, p.AcceptLanguage, p.CanvasHash, p.AudioHash))
}

func pick[T any](items []T) T {
	return items[rand.IntN(len(items))]
}

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
