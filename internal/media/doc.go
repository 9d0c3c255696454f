// Package media wraps the external tools used by the binary stages: ffmpeg
// for audio synthesis and video assembly, and a headless Chromium for
// rendering slide HTML into PNG frames. All invocations go through a
// CommandRunner so tests can assert argument construction without the tools
// installed.
package media
