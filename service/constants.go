package service

import (
	"encoding/hex"
	"fmt"
	"runtime/debug"
	"time"
)

const (
	Version     = "0.1.0"
	ServiceName = "neb-signer"
)

var (
	FullVersion = fmt.Sprintf("%s-%v", Version, gitCommitHash[0:8]) // semantic version followed by commit hash

	//
	// https://icinga.com/blog/2022/05/25/embedding-git-commit-information-in-go-binaries/
	//
	gitCommit string // overwritten by -ldflag "-X 'github.com/ATMackay/neb-signer/service.gitCommit=$commit_hash'"
	buildDate string // overwritten by -ldflag "-X 'github.com/ATMackay/neb-signer/service.buildDate=$build_date'"
)

// gitCommitHash reads the commit embedded in the running binary during the build.
var gitCommitHash = makeVCS()

func makeVCS() string {
	// Try embedded value
	if len(gitCommit) > 7 {
		mustDecodeHex(gitCommit[0:8]) // panics if the build was generated with a malicious $commit_hash value
		return gitCommit[0:8]
	}
	var commit string
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range info.Settings {
			if setting.Key == "vcs.revision" {
				commit = setting.Value
			}
		}
	}
	if len(commit) < 8 {
		commit = "00000000"
	}
	mustDecodeHex(commit[0:8])
	return commit
}

var date = makeDate()

func makeDate() string {
	if buildDate != "" {
		return buildDate
	}
	return time.Now().Format(time.RFC3339)
}

func mustDecodeHex(input string) {
	if _, err := hex.DecodeString(input); err != nil {
		panic(err)
	}
}
