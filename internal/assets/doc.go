// Package assets collects the files shipped next to a kernel.
//
// A [Collector] resolves the latest ROM release for the device through the
// vendor client selected by the request's base, downloads it, and, unless
// only the ROM was requested, adds a Kali NetHunter chroot and optionally
// the KernelSU manager APK. A manifest.json describing every collected file
// is written last.
//
// The asset directory is emptied before collection starts, so a failed run
// never leaves a stale asset set that looks complete. Every failure is
// reported as [ErrAssetFetch].
package assets
