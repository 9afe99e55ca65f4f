// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"github.com/charmbracelet/glamour"
	"golang.org/x/exp/slices"
)

// Id identifies an issue.
type Id int

const (
	BuildFileNotFoundId Id = iota + 1
	SpecLoadFailedId
	InterpreterNotFoundId
	ConfigLoadFailedId
	ArchNotSupportedId
	FetchFailedId
	VerificationFailedId
	UnpackFailedId
	StageFailedId
	PermissionDeniedId
)

type (
	// MarkdownMsg is the markdown body of an issue.
	MarkdownMsg string

	// HttpLink is a documentation URL.
	HttpLink string

	// Issue is a known failure with a markdown explanation rendered for
	// the terminal.
	Issue struct {
		id       Id
		mdMsg    MarkdownMsg
		docLinks []HttpLink
		extLinks []HttpLink
	}
)

// Id returns the issue identifier.
func (i *Issue) Id() Id { return i.id }

// MarkdownMsg returns the markdown body.
func (i *Issue) MarkdownMsg() MarkdownMsg { return i.mdMsg }

// DocLinks returns the documentation links.
func (i *Issue) DocLinks() []HttpLink { return slices.Clone(i.docLinks) }

// ExtLinks returns additional external links.
func (i *Issue) ExtLinks() []HttpLink { return slices.Clone(i.extLinks) }

// Render renders the issue with glamour using the given style ("" for auto).
func (i *Issue) Render(stylePath string) (string, error) {
	md := string(i.mdMsg)
	if len(i.docLinks) > 0 || len(i.extLinks) > 0 {
		md += "\n\n## See also\n"
		for _, link := range append(i.DocLinks(), i.extLinks...) {
			md += "- <" + string(link) + ">\n"
		}
	}
	if stylePath == "" {
		stylePath = "auto"
	}
	return render(md, stylePath)
}

var (
	render = glamour.Render

	pkgbuildDoc = HttpLink("https://man.archlinux.org/man/PKGBUILD.5")
	makepkgDoc  = HttpLink("https://man.archlinux.org/man/makepkg.8")
	confDoc     = HttpLink("https://man.archlinux.org/man/makepkg.conf.5")

	buildFileNotFoundIssue = &Issue{
		id: BuildFileNotFoundId,
		mdMsg: `
# No build file found!

pkgbake looks for a file named PKGBUILD in the current directory.

## Things you can try:
- Change into the directory that holds the PKGBUILD
- Pass the file explicitly:
~~~
$ pkgbake build -p path/to/PKGBUILD
~~~`,
		docLinks: []HttpLink{pkgbuildDoc},
	}

	specLoadFailedIssue = &Issue{
		id: SpecLoadFailedId,
		mdMsg: `
# The build file could not be loaded!

Sourcing the PKGBUILD failed, so no metadata could be read. Nothing was
downloaded or built.

## Things you can try:
- Check the syntax:
~~~
$ bash -n PKGBUILD
~~~
- Make sure top-level code does not call ` + "`exit`" + ` or fail under ` + "`set -e`" + `
- Run with ` + "`--verbose`" + ` to see the interpreter's stderr`,
		docLinks: []HttpLink{pkgbuildDoc},
	}

	interpreterNotFoundIssue = &Issue{
		id: InterpreterNotFoundId,
		mdMsg: `
# bash was not found!

Build files are bash scripts and pkgbake needs a bash interpreter to read them.

## Things you can try:
- Install bash and make sure it is on your PATH
- Point ` + "`bash_path`" + ` in your config.cue at the interpreter`,
		docLinks: []HttpLink{makepkgDoc},
	}

	configLoadFailedIssue = &Issue{
		id: ConfigLoadFailedId,
		mdMsg: `
# Failed to load configuration!

Either config.cue does not match the schema or a makepkg.conf file could
not be sourced.

## Things you can try:
- Print the defaults and compare:
~~~
$ pkgbake config show
~~~
- Check PKGBAKE_* environment variables for typos
- Source the makepkg.conf files with bash to find syntax errors`,
		docLinks: []HttpLink{confDoc},
	}

	archNotSupportedIssue = &Issue{
		id: ArchNotSupportedId,
		mdMsg: `
# Architecture not supported!

The PKGBUILD's ` + "`arch`" + ` array does not list the target architecture
(CARCH) and does not contain ` + "`any`" + `.

## Things you can try:
- Add the architecture to ` + "`arch=()`" + ` if the software supports it
- Override CARCH in makepkg.conf or the environment`,
		docLinks: []HttpLink{pkgbuildDoc},
	}

	fetchFailedIssue = &Issue{
		id: FetchFailedId,
		mdMsg: `
# Some sources could not be downloaded!

A source failed permanently or ran out of retries, and the remaining
downloads were canceled.

## Things you can try:
- Check the URL in ` + "`source=()`" + ` in a browser
- Retry later if the server reported a temporary error
- Raise ` + "`fetch.max_attempts`" + ` in config.cue for flaky mirrors`,
		docLinks: []HttpLink{pkgbuildDoc},
	}

	verificationFailedIssue = &Issue{
		id: VerificationFailedId,
		mdMsg: `
# Source verification failed!

A downloaded file did not match its recorded checksum, or its signature
could not be verified against a trusted key.

## Things you can try:
- Remove the cached file from SRCDEST and fetch again
- Update the checksums if upstream legitimately re-released the file
- Import the signer's key into a keyring listed under ` + "`trust.keyring`" + `
- Check that the fingerprint is listed in ` + "`validpgpkeys`",
		docLinks: []HttpLink{pkgbuildDoc, makepkgDoc},
	}

	unpackFailedIssue = &Issue{
		id: UnpackFailedId,
		mdMsg: `
# A source archive could not be extracted!

## Things you can try:
- Verify the archive is complete and not corrupted
- Add the file to ` + "`noextract=()`" + ` and extract it in ` + "`prepare()`" + ``,
		docLinks: []HttpLink{pkgbuildDoc},
	}

	stageFailedIssue = &Issue{
		id: StageFailedId,
		mdMsg: `
# A build stage failed!

One of prepare, build, check or package exited with a non-zero status.
Later stages were not run.

## Things you can try:
- Read the stage output above for the first error
- Re-run a single function:
~~~
$ pkgbake run build
~~~
- Skip the test suite with ` + "`--nocheck`" + ` if it is known to be flaky`,
		docLinks: []HttpLink{pkgbuildDoc, makepkgDoc},
	}

	permissionDeniedIssue = &Issue{
		id: PermissionDeniedId,
		mdMsg: `
# Permission denied!

## Things you can try:
- Check that SRCDEST and BUILDDIR are writable
- Do not run pkgbake as root`,
		docLinks: []HttpLink{confDoc},
	}

	issues = map[Id]*Issue{
		buildFileNotFoundIssue.Id():   buildFileNotFoundIssue,
		specLoadFailedIssue.Id():      specLoadFailedIssue,
		interpreterNotFoundIssue.Id(): interpreterNotFoundIssue,
		configLoadFailedIssue.Id():    configLoadFailedIssue,
		archNotSupportedIssue.Id():    archNotSupportedIssue,
		fetchFailedIssue.Id():         fetchFailedIssue,
		verificationFailedIssue.Id():  verificationFailedIssue,
		unpackFailedIssue.Id():        unpackFailedIssue,
		stageFailedIssue.Id():         stageFailedIssue,
		permissionDeniedIssue.Id():    permissionDeniedIssue,
	}
)

// Values returns every known issue ordered by id.
func Values() []*Issue {
	out := make([]*Issue, 0, len(issues))
	for _, is := range issues {
		out = append(out, is)
	}
	slices.SortFunc(out, func(a, b *Issue) int { return int(a.id) - int(b.id) })
	return out
}

// Get returns the issue for id, or nil.
func Get(id Id) *Issue {
	return issues[id]
}
