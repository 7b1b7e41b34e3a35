package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"chat-relay/internal/domain"
)

const skProfile = "PROFILE#"

// ErrNotFound is returned when no profile item exists for a business.
var ErrNotFound = errors.New("repository: business profile not found")

// dynamodbAPI is the minimal DynamoDB interface required by Client.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
}

// Client reads business profiles from a DynamoDB table keyed by
// PK=BUSINESS#<id>, SK=PROFILE#.
type Client struct {
	api       dynamodbAPI
	tableName string
}

func New(api dynamodbAPI, tableName string) (*Client, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &Client{api: api, tableName: tableName}, nil
}

func businessPK(businessID string) string {
	return "BUSINESS#" + businessID
}

// GetBusinessConfig loads the profile for businessID with a consistent read.
// Only company_name, contact_phone and work_hours are mandatory attributes.
func (c *Client) GetBusinessConfig(ctx context.Context, businessID string) (domain.BusinessConfig, error) {
	businessID = strings.TrimSpace(businessID)
	if businessID == "" {
		return domain.BusinessConfig{}, errors.New("repository: business id must not be empty")
	}

	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(c.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: businessPK(businessID)},
			"SK": &types.AttributeValueMemberS{Value: skProfile},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return domain.BusinessConfig{}, fmt.Errorf("repository: GetBusinessConfig get item: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return domain.BusinessConfig{}, fmt.Errorf("%w: %s", ErrNotFound, businessID)
	}

	cfg, err := itemToBusinessConfig(out.Item)
	if err != nil {
		return domain.BusinessConfig{}, fmt.Errorf("repository: GetBusinessConfig decode: %w", err)
	}
	return cfg, nil
}

func itemToBusinessConfig(item map[string]types.AttributeValue) (domain.BusinessConfig, error) {
	name, err := strAttr(item, "company_name")
	if err != nil {
		return domain.BusinessConfig{}, err
	}
	phone, err := strAttr(item, "contact_phone")
	if err != nil {
		return domain.BusinessConfig{}, err
	}
	hours, err := strAttr(item, "work_hours")
	if err != nil {
		return domain.BusinessConfig{}, err
	}
	businessType, err := optionalStrAttr(item, "business_type")
	if err != nil {
		return domain.BusinessConfig{}, err
	}
	instructions, err := optionalStrAttr(item, "custom_instructions")
	if err != nil {
		return domain.BusinessConfig{}, err
	}
	email, err := optionalStrAttr(item, "contact_email")
	if err != nil {
		return domain.BusinessConfig{}, err
	}
	website, err := optionalStrAttr(item, "website")
	if err != nil {
		return domain.BusinessConfig{}, err
	}

	return domain.BusinessConfig{
		CompanyName:        name,
		BusinessType:       businessType,
		CustomInstructions: instructions,
		WorkHours:          hours,
		ContactPhone:       phone,
		ContactEmail:       email,
		Website:            website,
	}, nil
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("repository: missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("repository: attribute %q is not a string", key)
	}
	return s.Value, nil
}

func optionalStrAttr(item map[string]types.AttributeValue, key string) (string, error) {
	if _, ok := item[key]; !ok {
		return "", nil
	}
	return strAttr(item, key)
}
