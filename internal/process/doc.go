// Package process runs the consumer subprocess that receives the video
// byte stream on its stdin.
//
// A Process starts the command in its own process group so a terminal
// SIGINT reaches only the bridge, streams the child's stdout and stderr
// into the logger through a pluggable LogParser, and stops it gracefully:
// stdin is closed, SIGINT is sent, and SIGKILL follows if the child does
// not exit within the graceful timeout.
//
//	p := process.New("consumer", `ffplay -loglevel level+info -f hevc -`, logger)
//	p.SetLogParser(logging.GetLogger("process"), process.ParserFor(p.Command()))
//	stdin, err := p.Start()
//	...
//	exitCode := p.Stop()
package process
