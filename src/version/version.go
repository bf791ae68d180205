package version

// Version is the released version of btrsnap.
const Version = "0.3.0"
