package notification

import "fmt"

const clickAction = "FLUTTER_NOTIFICATION_CLICK"

// Outbid tells the previous leader that someone bid higher
func Outbid(productID, title string) Message {
	return Message{
		Title: "Bid outbid!",
		Body:  fmt.Sprintf("Someone outbid you on %s", title),
		Data: map[string]string{
			"productId":    productID,
			"click_action": clickAction,
		},
	}
}

// AuctionWon tells the winner that the auction closed in their favor
func AuctionWon(productID, title string) Message {
	return Message{
		Title: "You won an auction!",
		Body:  fmt.Sprintf("Congratulations! You won the auction for %s. A seller will contact you soon.", title),
		Data: map[string]string{
			"productId":    productID,
			"click_action": clickAction,
		},
	}
}
