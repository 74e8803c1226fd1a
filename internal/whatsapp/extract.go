package whatsapp

import waProto "go.mau.fi/whatsmeow/binary/proto"

// ExtractText pulls the text body out of a message union, preferring
// in order: plain text, extended text, image caption, video caption,
// document-with-caption caption (spec §4.7 step 3). It reports false
// if none of those yields a non-empty string, signaling the event
// should be dropped.
func ExtractText(body *waProto.Message) (string, bool) {
	if body == nil {
		return "", false
	}

	if c := body.GetConversation(); c != "" {
		return c, true
	}
	if ext := body.GetExtendedTextMessage(); ext != nil {
		if t := ext.GetText(); t != "" {
			return t, true
		}
	}
	if img := body.GetImageMessage(); img != nil {
		if c := img.GetCaption(); c != "" {
			return c, true
		}
	}
	if vid := body.GetVideoMessage(); vid != nil {
		if c := vid.GetCaption(); c != "" {
			return c, true
		}
	}
	if doc := body.GetDocumentMessage(); doc != nil {
		if c := doc.GetCaption(); c != "" {
			return c, true
		}
	}

	return "", false
}
