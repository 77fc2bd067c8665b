package session

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// Outcome is a matcher's verdict on the records seen so far.
type Outcome int

const (
	OutcomePending Outcome = iota // keep waiting
	Success
	Failure
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case Failure:
		return "failure"
	default:
		return "pending"
	}
}

// Matcher decides when the outstanding command has been answered.  It
// sees every record accumulated since the previous resolution.
type Matcher interface {
	Match(records []string) Outcome
}

// Terminator matches TL1-style completion codes.  The command is
// answered once any record contains either token; it succeeded iff a
// record contains Positive.  When End is set a Negative answer is held
// until a record equal to End follows it, so the error code lines the
// device sends after the token reach the diagnostic.
type Terminator struct {
	Positive string
	Negative string
	End      string
}

// TL1 is the standard TL1 completion code pair.  A TL1 response ends
// with a line holding only ';'.
var TL1 = Terminator{Positive: "COMPLD", Negative: "DENY", End: ";"}

func (t Terminator) Match(records []string) Outcome {
	denied := false
	for _, r := range records {
		if strings.Contains(r, t.Positive) {
			return Success
		}
		if denied {
			if r == t.End {
				return Failure
			}
			continue
		}
		if strings.Contains(r, t.Negative) {
			if t.End == "" {
				return Failure
			}
			denied = true
		}
	}
	return OutcomePending
}

// Prompt matches a CLI prompt.  The command is answered once a record
// contains Marker.  When Require is set the answer is a success only if
// some record contains it, as with "commit complete".
type Prompt struct {
	Marker  string
	Require string
}

func (p Prompt) Match(records []string) Outcome {
	seen := false
	for _, r := range records {
		if strings.Contains(r, p.Marker) {
			seen = true
			break
		}
	}
	if !seen {
		return OutcomePending
	}
	if p.Require == "" {
		return Success
	}
	for _, r := range records {
		if strings.Contains(r, p.Require) {
			return Success
		}
	}
	return Failure
}

// RPCReply matches a NETCONF <rpc-reply>.  A reply carrying an
// <rpc-error> of severity "error" at any depth is a failure; warnings
// are not.  Junos nests errors inside load and commit results.
type RPCReply struct{}

type rpcError struct {
	Severity string `xml:"error-severity"`
	Message  string `xml:"error-message"`
}

func (RPCReply) Match(records []string) Outcome {
	for _, r := range records {
		if !strings.Contains(r, "rpc-reply") {
			continue
		}
		failed, err := rpcFailed(r)
		if err != nil || failed {
			return Failure
		}
		return Success
	}
	return OutcomePending
}

func rpcFailed(reply string) (bool, error) {
	d := xml.NewDecoder(strings.NewReader(reply))
	root := true
	for {
		tok, err := d.Token()
		if err == io.EOF {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		if root {
			if start.Name.Local != "rpc-reply" {
				return false, fmt.Errorf("unexpected <%s>", start.Name.Local)
			}
			root = false
			continue
		}
		if start.Name.Local != "rpc-error" {
			continue
		}
		var e rpcError
		if err := d.DecodeElement(&e, &start); err != nil {
			return false, err
		}
		if strings.TrimSpace(e.Severity) == "error" {
			return true, nil
		}
	}
}

// ConfigPresent reports whether a <get-config> reply carries any
// configuration under <data>.
func ConfigPresent(reply Reply) (bool, error) {
	var doc struct {
		Data struct {
			Inner []byte `xml:",innerxml"`
		} `xml:"data"`
	}
	for _, r := range reply.Records {
		if !strings.Contains(r, "rpc-reply") {
			continue
		}
		if err := xml.Unmarshal([]byte(r), &doc); err != nil {
			return false, err
		}
		return hasElements(doc.Data.Inner), nil
	}
	return false, nil
}

// hasElements reports whether raw contains at least one element other
// than an empty <configuration/> wrapper.
func hasElements(raw []byte) bool {
	d := xml.NewDecoder(strings.NewReader(string(raw)))
	depth := 0
	for {
		tok, err := d.Token()
		if err != nil {
			return false
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if depth == 0 && t.Name.Local == "configuration" {
				depth++
				continue
			}
			return true
		case xml.EndElement:
			if depth > 0 {
				depth--
			}
		}
	}
}
