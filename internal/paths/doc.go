// Provides platform-appropriate paths for zkb.
//
// Caches follow XDG conventions on Linux and platform-native conventions on
// macOS. The application name "zkb" is used as the subdirectory under each
// base path. The build workspace (kernel, assets and bundle directories)
// lives under a caller supplied root, usually the current directory.
package paths
