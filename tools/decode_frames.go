//go:build ignore

// decode_frames prints the fields of captured lettin datagrams.
//
// Input is one datagram per line as hex, optionally prefixed by a label
// and whitespace (e.g. "tx 00260102..." or "192.168.1.20:7000 0041...").
// Lines starting with # are skipped. Request frames are decoded and
// reassembled; anything else is decoded as a gateway response.
//
// Usage:
//
//	go run tools/decode_frames.go capture.txt
package main

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/lettin/lettin/internal/protocol"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: decode_frames <capture-file>")
		os.Exit(1)
	}

	f, err := os.Open(os.Args[1])
	if err != nil {
		fmt.Printf("Error opening file: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	reassembler := protocol.NewReassembler()
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		label, hexData := splitLine(line)
		data, err := hex.DecodeString(hexData)
		if err != nil {
			fmt.Printf("line %d: invalid hex: %v\n", lineNum, err)
			continue
		}

		fmt.Printf("=== line %d %s(%d bytes) ===\n", lineNum, label, len(data))
		if frame, err := protocol.DecodeFrame(data); err == nil {
			printFrame(frame, reassembler)
			continue
		}
		printResponse(data)
	}
	if err := scanner.Err(); err != nil {
		fmt.Printf("Error reading file: %v\n", err)
		os.Exit(1)
	}
}

func splitLine(line string) (label, hexData string) {
	fields := strings.Fields(line)
	if len(fields) == 1 {
		return "", fields[0]
	}
	return fields[0] + " ", strings.Join(fields[1:], "")
}

func printFrame(frame *protocol.Frame, reassembler *protocol.Reassembler) {
	fmt.Printf("request   %s\n", frame)
	payload, complete, err := reassembler.Add(frame)
	if err != nil {
		fmt.Printf("reassembly error: %v\n\n", err)
		return
	}
	if !complete {
		fmt.Printf("fragment %d/%d buffered\n\n", frame.Index+1, frame.Count)
		return
	}

	req, err := protocol.ParseDiscoverRequest(payload)
	if err != nil {
		fmt.Printf("payload   %q\nnot a discover request: %v\n\n", payload, err)
		return
	}
	fmt.Printf("discover  tid=%d cmd=%d token=%q\n\n", req.Tid, req.Cmd, req.Token)
}

func printResponse(data []byte) {
	resp, err := protocol.DecodeResponse(data)
	if err != nil {
		fmt.Printf("undecodable: %v\n%s\n", err, hex.Dump(data))
		return
	}

	fmt.Printf("response  identity=%s\n", resp.MAC())
	body, err := resp.ParseBody()
	if err != nil {
		fmt.Printf("body      %q (invalid JSON: %v)\n\n", resp.Body, err)
		return
	}
	tid := "-"
	if body.Tid != nil {
		tid = fmt.Sprint(*body.Tid)
	}
	fmt.Printf("body      name=%q mac=%q tid=%s\n\n", body.Name(), body.Mac, tid)
}
