package mailin

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"net/textproto"
	"regexp"
	"strings"

	"golang.org/x/text/encoding/htmlindex"
)

// maxNesting bounds multipart recursion
const maxNesting = 5

var linkPattern = regexp.MustCompile(`https?://[^\s<>"')\]]+`)

// parsedMail is what the importer keeps of a submitted message
type parsedMail struct {
	FromName    string
	FromAddress string
	Subject     string
	Category    string
	Body        string
	Links       []string
	Attachments []string
}

var wordDecoder = &mime.WordDecoder{CharsetReader: charsetReader}

func charsetReader(charset string, input io.Reader) (io.Reader, error) {
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return nil, fmt.Errorf("unsupported charset %q: %w", charset, err)
	}
	return enc.NewDecoder().Reader(input), nil
}

func decodeHeader(value string) string {
	decoded, err := wordDecoder.DecodeHeader(value)
	if err != nil {
		return value
	}
	return decoded
}

// parseMail reads a raw RFC 5322 message
func parseMail(raw []byte) (*parsedMail, error) {
	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}

	pm := &parsedMail{
		Subject:  strings.TrimSpace(decodeHeader(msg.Header.Get("Subject"))),
		Category: strings.TrimSpace(msg.Header.Get("X-Phishsim-Category")),
	}

	addrParser := &mail.AddressParser{WordDecoder: wordDecoder}
	if from, err := addrParser.Parse(msg.Header.Get("From")); err == nil {
		pm.FromName = from.Name
		pm.FromAddress = from.Address
	}

	var body strings.Builder
	header := textproto.MIMEHeader(msg.Header)
	if err := walkPart(header, msg.Body, pm, &body, 0); err != nil {
		return nil, err
	}
	pm.Body = strings.TrimSpace(body.String())
	pm.Links = uniqueLinks(pm.Body)

	return pm, nil
}

func walkPart(header textproto.MIMEHeader, r io.Reader, pm *parsedMail, body *strings.Builder, depth int) error {
	mediaType, params, err := mime.ParseMediaType(header.Get("Content-Type"))
	if err != nil {
		mediaType, params = "text/plain", map[string]string{}
	}

	if name := attachmentName(header, params); name != "" {
		pm.Attachments = append(pm.Attachments, name)
		return nil
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		boundary := params["boundary"]
		if boundary == "" || depth >= maxNesting {
			return nil
		}
		mr := multipart.NewReader(r, boundary)
		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				return nil
			}
			if err != nil {
				return fmt.Errorf("failed to read multipart body: %w", err)
			}
			if err := walkPart(part.Header, part, pm, body, depth+1); err != nil {
				return err
			}
		}
	}

	if mediaType != "text/plain" {
		return nil
	}

	text, err := readText(header, r, params["charset"])
	if err != nil {
		return err
	}
	if body.Len() > 0 {
		body.WriteString("\n")
	}
	body.WriteString(text)
	return nil
}

func attachmentName(header textproto.MIMEHeader, typeParams map[string]string) string {
	disposition, params, err := mime.ParseMediaType(header.Get("Content-Disposition"))
	if err == nil && (disposition == "attachment" || params["filename"] != "") {
		if name := params["filename"]; name != "" {
			return decodeHeader(name)
		}
		return typeParams["name"]
	}
	return ""
}

// readText undoes the transfer and charset encodings of a text part
func readText(header textproto.MIMEHeader, r io.Reader, charset string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(header.Get("Content-Transfer-Encoding"))) {
	case "base64":
		r = base64.NewDecoder(base64.StdEncoding, r)
	case "quoted-printable":
		r = quotedprintable.NewReader(r)
	}

	if charset != "" && !strings.EqualFold(charset, "utf-8") && !strings.EqualFold(charset, "us-ascii") {
		decoded, err := charsetReader(charset, r)
		if err == nil {
			r = decoded
		}
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("failed to read text part: %w", err)
	}
	return strings.ReplaceAll(string(data), "\r\n", "\n"), nil
}

func uniqueLinks(text string) []string {
	seen := make(map[string]bool)
	var links []string
	for _, l := range linkPattern.FindAllString(text, -1) {
		l = strings.TrimRight(l, ".,;:!?")
		if !seen[l] {
			seen[l] = true
			links = append(links, l)
		}
	}
	return links
}
