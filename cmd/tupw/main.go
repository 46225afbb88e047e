package main

import (
	"bufio"
	"crypto/sha256"
	"fmt"
	"io"
	"io/ioutil"
	"os"

	"github.com/atotto/clipboard"
	"github.com/blang/semver"
	"github.com/keybase/saltpack/encoding/basex"
	"github.com/op/go-logging"
	"github.com/urfave/cli"

	"github.com/agrinman/tupw"
)

// useSyslog reports whether SetupLogging should try syslog before
// falling back to stderr, honoring an explicit TUPW_LOG_SYSLOG
// override.
func useSyslog() bool {
	env := os.Getenv("TUPW_LOG_SYSLOG")
	if env != "" {
		return env == "true"
	}
	return true
}

var log = tupw.SetupLogging("tupw", logging.NOTICE, useSyslog())

// version is the semver string reported by `tupw version`. It is
// parsed with blang/semver when `tupw version` runs, so that command
// fails loudly if it is ever hand-edited into something invalid.
const version = "1.0.0"

// maxStdinBytes caps an item read from stdin, per spec.md §6's command
// surface note.
const maxStdinBytes = 50_000_000

func main() {
	app := cli.NewApp()
	app.Name = "tupw"
	app.Usage = "encrypt and decrypt short secrets into self-describing printable tokens"
	app.Version = version
	app.Commands = []cli.Command{
		{
			Name:      "encrypt",
			Usage:     "encrypt <key-file> <item|-> -- encrypt item (or stdin) under the key material in key-file",
			ArgsUsage: "<key-file> <item|->",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "subject", Usage: "domain-separation subject string"},
				cli.BoolFlag{Name: "copy", Usage: "copy the resulting token to the clipboard"},
			},
			Action: encryptCommand,
		},
		{
			Name:      "decrypt",
			Usage:     "decrypt <key-file> <token|-> -- decrypt a token (or stdin) under the key material in key-file",
			ArgsUsage: "<key-file> <token|->",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "subject", Usage: "domain-separation subject string"},
				cli.BoolFlag{Name: "copy", Usage: "copy the recovered secret to the clipboard"},
			},
			Action: decryptCommand,
		},
		{
			Name:      "inspect",
			Usage:     "inspect <token> -- report a token's format metadata without decrypting it",
			ArgsUsage: "<token>",
			Action:    inspectCommand,
		},
		{
			Name:   "version",
			Usage:  "print the tupw version",
			Action: versionCommand,
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Error("run failed:", err)
		printErr("%s", err.Error())
		os.Exit(1)
	}
}

func printFatal(format string, args ...interface{}) {
	printErr(format, args...)
	os.Exit(1)
}

func printErr(format string, args ...interface{}) {
	fmt.Fprintln(os.Stderr, red(fmt.Sprintf(format, args...)))
}

// readKeyMaterial reads the key-file's raw bytes from path. They become
// the engine's source bytes, not its key-derivation key.
func readKeyMaterial(path string) []byte {
	b, err := ioutil.ReadFile(path)
	if err != nil {
		printFatal("failed to read key file: %s", err.Error())
	}
	return b
}

// readItem reads item from argument arg, or from stdin (capped) when
// arg is "-".
func readItem(arg string) string {
	if arg != "-" {
		return arg
	}
	limited := io.LimitReader(os.Stdin, maxStdinBytes+1)
	b, err := ioutil.ReadAll(bufio.NewReader(limited))
	if err != nil {
		printFatal("failed to read from stdin: %s", err.Error())
	}
	if len(b) > maxStdinBytes {
		printFatal("stdin input exceeds the %d byte limit", maxStdinBytes)
	}
	return string(b)
}

// cliKeyDerivationKey is the key-derivation key used by every tupw CLI
// invocation. The tool is "keyless-looking" by design (spec.md §1): the
// operator only ever supplies a key-file of high-entropy source bytes,
// never the HMAC key itself, so this fixed 21-byte value is compiled
// into the binary rather than taken from a flag.
var cliKeyDerivationKey = []byte("tupw-cli-kdk-v1-fixed")

func newDefaultEngine(keyFile string) *tupw.Engine {
	source := readKeyMaterial(keyFile)
	defer tupw.Zero(source)

	sr := tupw.NewCryptoRandSource()
	e, err := tupw.NewEngine(sr, cliKeyDerivationKey, [][]byte{source})
	if err != nil {
		printFatal("%s", err.Error())
	}
	return e
}

func encryptCommand(c *cli.Context) error {
	if c.NArg() != 2 {
		return cli.NewExitError("usage: tupw encrypt <key-file> <item|->", 2)
	}
	engine := newDefaultEngine(c.Args().Get(0))
	defer engine.Destroy()

	item := readItem(c.Args().Get(1))
	subject := []byte(c.String("subject"))

	token, err := engine.EncryptString(item, subject)
	if err != nil {
		printFatal("%s", err.Error())
	}

	if c.Bool("copy") {
		if err := clipboard.WriteAll(token); err != nil {
			printErr("failed to copy to clipboard: %s", err.Error())
		}
	}
	fmt.Println(green(token))
	return nil
}

func decryptCommand(c *cli.Context) error {
	if c.NArg() != 2 {
		return cli.NewExitError("usage: tupw decrypt <key-file> <token|->", 2)
	}
	engine := newDefaultEngine(c.Args().Get(0))
	defer engine.Destroy()

	token := readItem(c.Args().Get(1))
	subject := []byte(c.String("subject"))

	secret, err := engine.DecryptString(token, subject)
	if err != nil {
		printFatal("%s", err.Error())
	}

	if c.Bool("copy") {
		if err := clipboard.WriteAll(secret); err != nil {
			printErr("failed to copy to clipboard: %s", err.Error())
		}
	}
	fmt.Println(secret)
	return nil
}

func versionCommand(c *cli.Context) error {
	v, err := semver.Parse(version)
	if err != nil {
		printFatal("built with an invalid version string: %s", err.Error())
	}
	fmt.Println(yellow(v.String()))
	return nil
}

func inspectCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.NewExitError("usage: tupw inspect <token>", 2)
	}
	fmt.Print(describeToken(c.Args().Get(0)))
	return nil
}

// describeToken builds the human-readable report emitted by `tupw
// inspect`: the format id's cipher mode, field encoding, separator, and
// subject-awareness, plus a non-secret basex digest of the ciphertext
// field for log and ticket correlation. It never touches key material.
func describeToken(token string) string {
	info, err := tupw.DescribeTokenFormat(token)
	if err != nil {
		return red(err.Error()) + "\n"
	}

	digest := sha256.Sum256(info.CipherTextField)
	fingerprint := basex.Base62StdEncoding.EncodeToString(digest[:])
	if len(fingerprint) > 16 {
		fingerprint = fingerprint[:16]
	}

	return fmt.Sprintf(
		"format: %s\nmode: %s\nencoding: %s\nseparator: %q\nsubject-aware tag: %v\nciphertext fingerprint: %s\n",
		green(string(info.FormatID)),
		info.Mode,
		info.Encoding,
		info.Separator,
		info.SubjectAwareTag,
		yellow(fingerprint),
	)
}
