package models

import "encoding/json"

// Request payloads accept the camelCase keys sent by the web storefront as
// well as the snake_case keys used in responses. When both are present the
// snake_case value wins.

func (in *RegisterInput) UnmarshalJSON(data []byte) error {
	type plain RegisterInput
	var aux struct {
		plain
		ConfirmPasswordCamel *string `json:"confirmPassword"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*in = RegisterInput(aux.plain)
	if in.ConfirmPassword == "" && aux.ConfirmPasswordCamel != nil {
		in.ConfirmPassword = *aux.ConfirmPasswordCamel
	}
	return nil
}

func (a *ShippingAddress) UnmarshalJSON(data []byte) error {
	type plain ShippingAddress
	var aux struct {
		plain
		FullNameCamel *string `json:"fullName"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*a = ShippingAddress(aux.plain)
	if a.FullName == "" && aux.FullNameCamel != nil {
		a.FullName = *aux.FullNameCamel
	}
	return nil
}

func (l *OrderLineInput) UnmarshalJSON(data []byte) error {
	type plain OrderLineInput
	var aux struct {
		plain
		ProductIDCamel *int64 `json:"productId"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*l = OrderLineInput(aux.plain)
	if l.ProductID == 0 && aux.ProductIDCamel != nil {
		l.ProductID = *aux.ProductIDCamel
	}
	return nil
}

func (in *CreateOrderInput) UnmarshalJSON(data []byte) error {
	type plain CreateOrderInput
	var aux struct {
		plain
		UserIDCamel          *int64           `json:"userId"`
		ShippingAddressCamel *ShippingAddress `json:"shippingAddress"`
		PaymentMethodCamel   *PaymentMethod   `json:"paymentMethod"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*in = CreateOrderInput(aux.plain)
	if in.UserID == 0 && aux.UserIDCamel != nil {
		in.UserID = *aux.UserIDCamel
	}
	if in.ShippingAddress == (ShippingAddress{}) && aux.ShippingAddressCamel != nil {
		in.ShippingAddress = *aux.ShippingAddressCamel
	}
	if in.PaymentMethod == "" && aux.PaymentMethodCamel != nil {
		in.PaymentMethod = *aux.PaymentMethodCamel
	}
	return nil
}
